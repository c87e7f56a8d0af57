package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"brewline/internal/config"
	"brewline/internal/events"
	"brewline/internal/kv"
	"brewline/internal/notify"
	"brewline/internal/repo"
)

var (
	ErrRecipeNotFound    = errors.New("recipe not found")
	ErrSessionActive     = errors.New("a brew session is already in progress")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var (
	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewline_session_transitions_total",
		Help: "Brew session lifecycle changes by event type",
	}, []string{"type"})

	brewTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewline_brew_transitions_total",
		Help: "Brew record status changes by target status",
	}, []string{"status"})

	timerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewline_step_timer_operations_total",
		Help: "Step timer operations by kind",
	}, []string{"op"})

	swallowedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewline_swallowed_errors_total",
		Help: "Best-effort side effects that failed and were logged",
	}, []string{"op"})
)

const defaultStaleAfter = time.Hour

// Engine owns brew-day sessions, their step timers and the hand-off to the tracker.
type Engine struct {
	Sessions  repo.Sessions
	Templates repo.TaskTemplates
	Recipes   repo.Recipes
	Scheduler notify.Scheduler
	// Tracker receives completed sessions. Nil disables the hand-off.
	Tracker *Tracker
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time
	Logger  *slog.Logger
}

// New wires an engine over one key-value store and the workspace database.
func New(db *sql.DB, store kv.Store, scheduler notify.Scheduler, cfg *config.Config) Engine {
	e := Engine{
		Sessions:  repo.Sessions{Store: store},
		Templates: repo.TaskTemplates{Store: store},
		Recipes:   repo.Recipes{Store: store},
		Scheduler: scheduler,
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Now:       time.Now,
	}
	if db != nil {
		e.Tracker = NewTracker(db, scheduler, cfg)
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (e Engine) staleAfter() time.Duration {
	if e.Config != nil && e.Config.Timer.StaleAfter > 0 {
		return e.Config.Timer.StaleAfter
	}
	return defaultStaleAfter
}

func (e Engine) handoff() bool {
	if e.Tracker == nil {
		return false
	}
	return e.Config == nil || e.Config.Tracking.Handoff
}

// swallow logs a best-effort failure.
func (e Engine) swallow(op string, err error, attrs ...any) {
	if err == nil {
		return
	}
	swallowedErrors.WithLabelValues(op).Inc()
	e.logger().Warn(op+" failed", append(attrs, "error", err)...)
}

func (e Engine) record(ctx context.Context, evtType, sessionID string, payload events.EventPayload) {
	sessionTransitions.WithLabelValues(evtType).Inc()
	e.swallow("record event", e.Events.Record(ctx, evtType, "session", sessionID, payload), "session_id", sessionID)
}

func (e Engine) cancelNotification(ctx context.Context, sessionID, id string) {
	if id == "" || e.Scheduler == nil {
		return
	}
	e.swallow("cancel notification", e.Scheduler.Cancel(ctx, id), "session_id", sessionID, "notification_id", id)
}
