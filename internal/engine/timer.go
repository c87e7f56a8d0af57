package engine

import (
	"context"
	"math"
	"time"

	"brewline/internal/domain"
	"brewline/internal/events"
	"brewline/internal/notify"
)

// TimerState is the countdown of a session's current step at one observation.
type TimerState struct {
	SessionID string `json:"session_id"`
	StepIndex int    `json:"step_index"`
	StepID    string `json:"step_id"`
	StepName  string `json:"step_name"`
	// PlannedSeconds is the full length of the step, the value to resume from after a step change.
	PlannedSeconds int    `json:"planned_seconds"`
	Running        bool   `json:"running"`
	TargetTs       *int64 `json:"target_ts,omitempty"`
	Remaining      int    `json:"remaining"`
}

func timerState(s domain.BrewSession, remaining int) TimerState {
	st := TimerState{
		SessionID: s.ID,
		StepIndex: s.CurrentStepIndex,
		Running:   s.CurrentStepTargetTs != nil,
		TargetTs:  s.CurrentStepTargetTs,
		Remaining: remaining,
	}
	if step, ok := s.CurrentStep(); ok {
		st.StepID = step.ID
		st.StepName = step.Name
		st.PlannedSeconds = step.PlannedSeconds()
	}
	return st
}

// remainingAt is max(0, round((target-now)/1s)) with both instants in epoch millis.
func remainingAt(targetMs, nowMs int64) int {
	return max(0, int(math.Round(float64(targetMs-nowMs)/1000)))
}

// StartStepTimer starts the current step's countdown with remainingSeconds left. The
// deadline is stored, not the countdown, so remaining time survives restarts.
func (e Engine) StartStepTimer(ctx context.Context, id string, remainingSeconds int) (*TimerState, error) {
	return e.startTimer(ctx, id, remainingSeconds, "start")
}

// ResumeStepTimer restarts a paused countdown from the remaining seconds the caller kept.
func (e Engine) ResumeStepTimer(ctx context.Context, id string, remainingSeconds int) (*TimerState, error) {
	return e.startTimer(ctx, id, remainingSeconds, "resume")
}

func (e Engine) startTimer(ctx context.Context, id string, remainingSeconds int, op string) (*TimerState, error) {
	s, err := e.loadOpen(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	remainingSeconds = max(0, remainingSeconds)
	now := e.now()
	target := now.UnixMilli() + int64(remainingSeconds)*1000
	e.cancelNotification(ctx, id, s.CurrentStepNotificationID)

	notificationID := ""
	if step, ok := s.CurrentStep(); ok && e.Scheduler != nil {
		nid, err := e.Scheduler.Schedule(ctx, notify.StepAlert(id, step.Name), time.UnixMilli(target))
		e.swallow("schedule step notification", err, "session_id", id, "step_id", step.ID)
		notificationID = nid
	}
	updated, err := e.UpdateSession(ctx, id, SessionPatch{
		ClearTimer:                true,
		CurrentStepTargetTs:       &target,
		CurrentStepNotificationID: &notificationID,
	})
	if err != nil || updated == nil {
		if notificationID != "" {
			e.cancelNotification(ctx, id, notificationID)
		}
		return nil, err
	}
	timerOps.WithLabelValues(op).Inc()
	st := timerState(*updated, remainingAt(target, now.UnixMilli()))
	return &st, nil
}

// PauseStepTimer stops the countdown. The returned state carries the remaining seconds
// at the moment of the pause; the session keeps no paused value of its own.
func (e Engine) PauseStepTimer(ctx context.Context, id string) (*TimerState, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	remaining := 0
	if s.CurrentStepTargetTs != nil {
		remaining = remainingAt(*s.CurrentStepTargetTs, e.now().UnixMilli())
	}
	updated, err := e.clearTimer(ctx, s)
	if err != nil || updated == nil {
		return nil, err
	}
	timerOps.WithLabelValues("pause").Inc()
	st := timerState(*updated, remaining)
	return &st, nil
}

// ClearStepTimer cancels the step notification and drops the deadline.
func (e Engine) ClearStepTimer(ctx context.Context, id string) (*TimerState, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	updated, err := e.clearTimer(ctx, s)
	if err != nil || updated == nil {
		return nil, err
	}
	timerOps.WithLabelValues("clear").Inc()
	st := timerState(*updated, 0)
	return &st, nil
}

func (e Engine) clearTimer(ctx context.Context, s *domain.BrewSession) (*domain.BrewSession, error) {
	if s.CurrentStepTargetTs == nil && s.CurrentStepNotificationID == "" {
		return s, nil
	}
	e.cancelNotification(ctx, s.ID, s.CurrentStepNotificationID)
	return e.UpdateSession(ctx, s.ID, SessionPatch{ClearTimer: true})
}

// GetRemainingTime returns the seconds left on the current step, recomputed from the
// stored deadline on every call. A deadline that expired more than the stale window
// ago is cleared as a side effect; a failure to clear it is only logged.
func (e Engine) GetRemainingTime(ctx context.Context, id string) (int, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil || s.CurrentStepTargetTs == nil {
		return 0, err
	}
	nowMs := e.now().UnixMilli()
	target := *s.CurrentStepTargetTs
	remaining := remainingAt(target, nowMs)
	if remaining == 0 && nowMs-target > e.staleAfter().Milliseconds() {
		_, err := e.clearTimer(ctx, s)
		e.swallow("clear stale timer", err, "session_id", id)
		if err == nil {
			timerOps.WithLabelValues("stale_clear").Inc()
			e.logger().Info("cleared stale step timer", "session_id", id, "target_ts", target)
		}
	}
	return remaining, nil
}

// TimerStatus observes the current step's countdown, applying the same stale-timer
// cleanup as GetRemainingTime.
func (e Engine) TimerStatus(ctx context.Context, id string) (*TimerState, error) {
	remaining, err := e.GetRemainingTime(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	st := timerState(*s, remaining)
	return &st, nil
}

// StepElapsed handles a countdown reaching zero: the current step is marked completed
// and the timer cleared. It only acts while deadline is still the stored target, so
// firing twice for the same deadline is a no-op. Returns nil when nothing fired.
func (e Engine) StepElapsed(ctx context.Context, id string, deadline int64) (*domain.BrewSession, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	if s.CurrentStepTargetTs == nil || *s.CurrentStepTargetTs != deadline {
		return nil, nil
	}
	if remainingAt(deadline, e.now().UnixMilli()) > 0 {
		return nil, nil
	}
	step, ok := s.CurrentStep()
	if !ok {
		return nil, nil
	}
	// the alert has fired already; drop the handle without touching delivered rows
	e.cancelNotification(ctx, id, s.CurrentStepNotificationID)
	updated, err := e.UpdateSession(ctx, id, SessionPatch{
		Steps:      markCompleted(s.Steps, s.CurrentStepIndex, e.now()),
		ClearTimer: true,
	})
	if err != nil || updated == nil {
		return nil, err
	}
	timerOps.WithLabelValues("elapsed").Inc()
	e.record(ctx, events.SessionStepDone, id, events.EventPayload{"step_id": step.ID, "deadline": deadline})
	return updated, nil
}
