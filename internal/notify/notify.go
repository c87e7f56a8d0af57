// Package notify schedules one-shot local alerts and delivers them when due.
//
// Scheduling is best-effort from the caller's point of view: a disabled scheduler
// (the user denied notifications) returns an empty handle instead of an error, and
// callers are expected to log and continue on any error it does return.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"brewline/internal/domain"
	"brewline/internal/repo"
)

var (
	scheduledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewline_notifications_scheduled_total",
		Help: "Notifications scheduled by kind",
	}, []string{"kind"})

	skippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewline_notifications_skipped_total",
		Help: "Schedule requests not scheduled, by reason",
	}, []string{"reason"})

	canceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brewline_notifications_canceled_total",
		Help: "Pending notifications canceled",
	})

	deliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewline_notifications_delivered_total",
		Help: "Notifications delivered by kind",
	}, []string{"kind"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brewline_notification_failures_total",
		Help: "Notification operation failures by operation",
	}, []string{"op"})
)

// Alert is the payload of a scheduled notification.
type Alert struct {
	Kind      domain.NotificationKind
	SubjectID string
	Title     string
	Body      string
}

// Scheduler schedules and cancels one-shot alerts.
type Scheduler interface {
	// Schedule returns the handle of the scheduled alert, or "" when nothing was scheduled.
	Schedule(ctx context.Context, alert Alert, fireAt time.Time) (string, error)
	Cancel(ctx context.Context, id string) error
	CancelMatching(ctx context.Context, match func(domain.Notification) bool) error
}

// StepAlert builds the alert for a brew-day step countdown reaching zero.
func StepAlert(sessionID, stepName string) Alert {
	return Alert{
		Kind:      domain.NotifyBrewStep,
		SubjectID: sessionID,
		Title:     "Brew step complete",
		Body:      fmt.Sprintf("%s is done. Time for the next step of your brew day.", stepName),
	}
}

// StageAlert builds the reminder for the end of a fermentation or conditioning stage.
func StageAlert(brewID string, kind domain.NotificationKind) Alert {
	a := Alert{Kind: kind, SubjectID: brewID}
	switch kind {
	case domain.NotifyFermentation:
		a.Title = "Fermentation ready"
		a.Body = "Check the gravity and decide whether to move on to conditioning."
	case domain.NotifyConditioning:
		a.Title = "Conditioning complete"
		a.Body = "Time to bottle or serve your beer."
	default:
		a.Title = "Brew reminder"
	}
	return a
}

// SQLScheduler persists alerts in the notifications table; a Dispatcher delivers them.
type SQLScheduler struct {
	Repo    repo.Repo
	Enabled bool
	// MinLead skips alerts that would fire sooner than this from now.
	MinLead time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
}

func NewSQLScheduler(r repo.Repo, enabled bool, minLead time.Duration, logger *slog.Logger) *SQLScheduler {
	return &SQLScheduler{Repo: r, Enabled: enabled, MinLead: minLead, Now: time.Now, Logger: logger}
}

func (s *SQLScheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQLScheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (s *SQLScheduler) Schedule(ctx context.Context, alert Alert, fireAt time.Time) (string, error) {
	if !s.Enabled {
		skippedTotal.WithLabelValues("disabled").Inc()
		return "", nil
	}
	now := s.now()
	if fireAt.Sub(now) < s.MinLead {
		skippedTotal.WithLabelValues("too_soon").Inc()
		return "", nil
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		Kind:      alert.Kind,
		SubjectID: alert.SubjectID,
		Title:     alert.Title,
		Body:      alert.Body,
		FireAt:    fireAt,
		CreatedAt: now,
	}
	if err := s.Repo.InsertNotification(ctx, n); err != nil {
		failuresTotal.WithLabelValues("schedule").Inc()
		return "", fmt.Errorf("schedule notification: %w", err)
	}
	scheduledTotal.WithLabelValues(string(alert.Kind)).Inc()
	s.logger().Debug("notification scheduled", "id", n.ID, "kind", n.Kind, "subject_id", n.SubjectID, "fire_at", fireAt)
	return n.ID, nil
}

func (s *SQLScheduler) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	ok, err := s.Repo.CancelNotification(ctx, id, s.now())
	if err != nil {
		failuresTotal.WithLabelValues("cancel").Inc()
		return fmt.Errorf("cancel notification %s: %w", id, err)
	}
	if ok {
		canceledTotal.Inc()
	}
	return nil
}

func (s *SQLScheduler) CancelMatching(ctx context.Context, match func(domain.Notification) bool) error {
	pending, err := s.Repo.PendingNotifications(ctx)
	if err != nil {
		failuresTotal.WithLabelValues("cancel").Inc()
		return fmt.Errorf("list pending notifications: %w", err)
	}
	for _, n := range pending {
		if !match(n) {
			continue
		}
		if err := s.Cancel(ctx, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// ForSubject matches every alert about one session or brew.
func ForSubject(subjectID string) func(domain.Notification) bool {
	return func(n domain.Notification) bool { return n.SubjectID == subjectID }
}

// StepAlertsFor matches brew-step alerts of one session, or of all sessions when sessionID is empty.
func StepAlertsFor(sessionID string) func(domain.Notification) bool {
	return func(n domain.Notification) bool {
		return n.Kind == domain.NotifyBrewStep && (sessionID == "" || n.SubjectID == sessionID)
	}
}
