package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"brewline/internal/config"
	"brewline/internal/domain"
	"brewline/internal/events"
	"brewline/internal/notify"
	"brewline/internal/repo"
)

// Tracker moves brew records through fermentation, conditioning and completion.
// Day counts and progress are derived from the stored start stamps.
type Tracker struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Scheduler notify.Scheduler
	Config    *config.Config
	Now       func() time.Time
	Logger    *slog.Logger
}

func NewTracker(db *sql.DB, scheduler notify.Scheduler, cfg *config.Config) *Tracker {
	return &Tracker{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Scheduler: scheduler,
		Config:    cfg,
		Now:       time.Now,
	}
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tracker) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (t *Tracker) defaultTargets() (int, int) {
	if t.Config != nil {
		return t.Config.Tracking.TargetFermentationDays, t.Config.Tracking.TargetConditioningDays
	}
	return domain.DefaultTargetFermentationDays, domain.DefaultTargetConditioningDays
}

// NewBrewOptions are parameters for starting a brew record. Zero targets fall back to
// the configured defaults.
type NewBrewOptions struct {
	RecipeID               *string
	RecipeName             string
	SessionID              *string
	BatchSize              *float64
	TargetFermentationDays int
	TargetConditioningDays int
	FermentationTemp       *float64
	Notes                  string
}

// StartNewBrew creates a record in brewing status dated now.
func (t *Tracker) StartNewBrew(ctx context.Context, opts NewBrewOptions) (domain.BrewRecord, error) {
	if opts.RecipeName == "" {
		return domain.BrewRecord{}, errors.New("recipe name is required")
	}
	ferm, cond := t.defaultTargets()
	if opts.TargetFermentationDays > 0 {
		ferm = opts.TargetFermentationDays
	}
	if opts.TargetConditioningDays > 0 {
		cond = opts.TargetConditioningDays
	}
	now := t.now()
	b := domain.BrewRecord{
		ID:                     uuid.NewString(),
		RecipeID:               opts.RecipeID,
		RecipeName:             opts.RecipeName,
		SessionID:              opts.SessionID,
		Status:                 domain.BrewBrewing,
		BrewDate:               now,
		BatchSize:              opts.BatchSize,
		FermentationTemp:       opts.FermentationTemp,
		TargetFermentationDays: ferm,
		TargetConditioningDays: cond,
		Notes:                  opts.Notes,
		QuickNotes:             []domain.QuickNote{},
		Measurements:           []domain.Measurement{},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BrewRecord{}, err
	}
	defer tx.Rollback()
	if err := t.Repo.InsertBrewTx(ctx, tx, b); err != nil {
		return domain.BrewRecord{}, err
	}
	payload := events.EventPayload{"recipe_name": b.RecipeName}
	if b.SessionID != nil {
		payload["session_id"] = *b.SessionID
	}
	if err := t.Events.Append(ctx, tx, events.BrewStarted, "brew", b.ID, payload); err != nil {
		return domain.BrewRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.BrewRecord{}, err
	}
	brewTransitions.WithLabelValues(string(domain.BrewBrewing)).Inc()
	return b, nil
}

// update loads a record inside a transaction, applies mutate to a copy and writes it
// back together with its event. The caller sees the new value only after commit.
// Returns nil when the record does not exist.
func (t *Tracker) update(ctx context.Context, id, evtType string, mutate func(b *domain.BrewRecord, now time.Time) (events.EventPayload, error)) (*domain.BrewRecord, error) {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	b, err := t.Repo.GetBrewTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load brew %s: %w", id, err)
	}
	now := t.now()
	payload, err := mutate(&b, now)
	if err != nil {
		return nil, err
	}
	b.UpdatedAt = now
	if err := t.Repo.UpdateBrewTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if evtType != "" {
		if err := t.Events.Append(ctx, tx, evtType, "brew", b.ID, payload); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &b, nil
}

func requireStatus(b *domain.BrewRecord, allowed ...domain.BrewStatus) error {
	if slices.Contains(allowed, b.Status) {
		return nil
	}
	return fmt.Errorf("%w: brew %s is %s", ErrInvalidTransition, b.ID, b.Status)
}

// recomputeABV refreshes the measured ABV when both gravities are known.
func recomputeABV(b *domain.BrewRecord) {
	if b.OriginalGravity == nil || b.FinalGravity == nil {
		return
	}
	abv := roundTo(abvFrom(*b.OriginalGravity, *b.FinalGravity), 1)
	b.MeasuredABV = &abv
}

// freezeDays records the whole days spent in a stage. A count is written once.
func freezeDays(dst **int, start *time.Time, now time.Time) {
	if *dst != nil || start == nil {
		return
	}
	d := daysBetween(start, now)
	*dst = &d
}

// StartFermentation moves a brewing record to fermenting with its original gravity.
// Nil temp or targetDays keep the stored values.
func (t *Tracker) StartFermentation(ctx context.Context, id string, og float64, temp *float64, targetDays *int) (*domain.BrewRecord, error) {
	b, err := t.update(ctx, id, events.BrewFermenting, func(b *domain.BrewRecord, now time.Time) (events.EventPayload, error) {
		if err := requireStatus(b, domain.BrewBrewing); err != nil {
			return nil, err
		}
		b.Status = domain.BrewFermenting
		b.FermentationStart = &now
		b.OriginalGravity = &og
		if temp != nil {
			b.FermentationTemp = temp
		}
		if targetDays != nil && *targetDays > 0 {
			b.TargetFermentationDays = *targetDays
		}
		recomputeABV(b)
		return events.EventPayload{"original_gravity": og, "target_days": b.TargetFermentationDays}, nil
	})
	if err != nil || b == nil {
		return b, err
	}
	brewTransitions.WithLabelValues(string(b.Status)).Inc()
	t.remind(ctx, *b, domain.NotifyFermentation, *b.FermentationStart, b.TargetFermentationDays)
	return b, nil
}

// StartConditioning moves a fermenting record to conditioning with its final gravity
// and freezes the fermentation day count.
func (t *Tracker) StartConditioning(ctx context.Context, id string, fg float64, targetDays *int) (*domain.BrewRecord, error) {
	b, err := t.update(ctx, id, events.BrewConditioning, func(b *domain.BrewRecord, now time.Time) (events.EventPayload, error) {
		if err := requireStatus(b, domain.BrewFermenting); err != nil {
			return nil, err
		}
		b.Status = domain.BrewConditioning
		b.ConditioningStart = &now
		b.FinalGravity = &fg
		if targetDays != nil && *targetDays > 0 {
			b.TargetConditioningDays = *targetDays
		}
		freezeDays(&b.ActualFermentationDays, fermentationStart(*b), now)
		recomputeABV(b)
		return events.EventPayload{"final_gravity": fg, "fermentation_days": *b.ActualFermentationDays}, nil
	})
	if err != nil || b == nil {
		return b, err
	}
	brewTransitions.WithLabelValues(string(b.Status)).Inc()
	t.cancelReminders(ctx, b.ID, domain.NotifyFermentation)
	t.remind(ctx, *b, domain.NotifyConditioning, *b.ConditioningStart, b.TargetConditioningDays)
	return b, nil
}

// CompleteBrew stamps the packaging date and freezes the day count of the stage being left.
func (t *Tracker) CompleteBrew(ctx context.Context, id string) (*domain.BrewRecord, error) {
	b, err := t.update(ctx, id, events.BrewCompleted, func(b *domain.BrewRecord, now time.Time) (events.EventPayload, error) {
		if !b.Status.Active() {
			return nil, fmt.Errorf("%w: brew %s is %s", ErrInvalidTransition, b.ID, b.Status)
		}
		switch b.Status {
		case domain.BrewFermenting:
			freezeDays(&b.ActualFermentationDays, fermentationStart(*b), now)
		case domain.BrewConditioning:
			freezeDays(&b.ActualConditioningDays, b.ConditioningStart, now)
		}
		b.Status = domain.BrewCompleted
		b.PackagingDate = &now
		recomputeABV(b)
		return events.EventPayload{"packaging_date": now.UTC().Format(time.RFC3339)}, nil
	})
	if err != nil || b == nil {
		return b, err
	}
	brewTransitions.WithLabelValues(string(b.Status)).Inc()
	t.cancelReminders(ctx, b.ID, "")
	return b, nil
}

// ArchiveBrew hides a completed record from the active list.
func (t *Tracker) ArchiveBrew(ctx context.Context, id string) (*domain.BrewRecord, error) {
	b, err := t.update(ctx, id, events.BrewArchived, func(b *domain.BrewRecord, _ time.Time) (events.EventPayload, error) {
		if err := requireStatus(b, domain.BrewCompleted); err != nil {
			return nil, err
		}
		b.Status = domain.BrewArchived
		return nil, nil
	})
	if err == nil && b != nil {
		brewTransitions.WithLabelValues(string(b.Status)).Inc()
	}
	return b, err
}

func (t *Tracker) AddQuickNote(ctx context.Context, id, text string) (*domain.BrewRecord, error) {
	return t.update(ctx, id, "", func(b *domain.BrewRecord, now time.Time) (events.EventPayload, error) {
		b.QuickNotes = append(slices.Clone(b.QuickNotes), domain.QuickNote{ID: uuid.NewString(), Timestamp: now, Text: text})
		return nil, nil
	})
}

func (t *Tracker) AddMeasurement(ctx context.Context, id string, in MeasurementInput) (*domain.BrewRecord, error) {
	return t.update(ctx, id, "", func(b *domain.BrewRecord, now time.Time) (events.EventPayload, error) {
		b.Measurements = append(slices.Clone(b.Measurements), newMeasurement(in, now))
		return nil, nil
	})
}

// DeleteBrew removes a record and cancels its pending reminders. Reports whether a
// record was deleted.
func (t *Tracker) DeleteBrew(ctx context.Context, id string) (bool, error) {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if err := t.Repo.DeleteBrewTx(ctx, tx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete brew %s: %w", id, err)
	}
	if err := t.Events.Append(ctx, tx, events.BrewDeleted, "brew", id, nil); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	t.cancelReminders(ctx, id, "")
	return true, nil
}

// GetBrew returns the record, or nil if it does not exist.
func (t *Tracker) GetBrew(ctx context.Context, id string) (*domain.BrewRecord, error) {
	b, err := t.Repo.GetBrew(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// ListBrews splits records into active ones and completed or archived ones, newest first.
func (t *Tracker) ListBrews(ctx context.Context) (active, archived []domain.BrewRecord, err error) {
	all, err := t.Repo.ListBrews(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range all {
		if b.Status.Active() {
			active = append(active, b)
		} else {
			archived = append(archived, b)
		}
	}
	return active, archived, nil
}

// View derives day count, progress and completion estimate at the tracker's clock.
func (t *Tracker) View(b domain.BrewRecord) BrewView {
	return NewBrewView(b, t.now())
}

func (t *Tracker) remind(ctx context.Context, b domain.BrewRecord, kind domain.NotificationKind, from time.Time, days int) {
	if t.Scheduler == nil {
		return
	}
	_, err := t.Scheduler.Schedule(ctx, notify.StageAlert(b.ID, kind), from.AddDate(0, 0, days))
	if err != nil {
		swallowedErrors.WithLabelValues("schedule stage reminder").Inc()
		t.logger().Warn("schedule stage reminder failed", "brew_id", b.ID, "kind", kind, "error", err)
	}
}

// cancelReminders cancels pending reminders for a brew, only those of kind when set.
func (t *Tracker) cancelReminders(ctx context.Context, brewID string, kind domain.NotificationKind) {
	if t.Scheduler == nil {
		return
	}
	match := notify.ForSubject(brewID)
	if kind != "" {
		match = func(n domain.Notification) bool { return n.SubjectID == brewID && n.Kind == kind }
	}
	if err := t.Scheduler.CancelMatching(ctx, match); err != nil {
		swallowedErrors.WithLabelValues("cancel stage reminder").Inc()
		t.logger().Warn("cancel stage reminders failed", "brew_id", brewID, "error", err)
	}
}
