package engine

import (
	"context"
	"time"

	"brewline/internal/domain"
)

// Observer polls a session's step countdown. Each tick only reads the deadline; when
// the remaining time hits zero the step-complete path runs once per deadline.
type Observer struct {
	Engine Engine
	// SessionID selects the session to watch. Empty follows the active session.
	SessionID string
	Interval  time.Duration
	OnTick    func(TimerState)
	// OnStepElapsed is called once for every deadline that is reached.
	OnStepElapsed func(domain.BrewSession)
}

// Tick observes the timer once. It returns nil when there is no session to watch.
func (o Observer) Tick(ctx context.Context) (*TimerState, error) {
	s, err := o.session(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	// fire before TimerStatus gets a chance to drop a stale deadline
	target := s.CurrentStepTargetTs
	if target != nil && remainingAt(*target, o.Engine.now().UnixMilli()) == 0 {
		fired, err := o.Engine.StepElapsed(ctx, s.ID, *target)
		if err != nil {
			return nil, err
		}
		if fired != nil && o.OnStepElapsed != nil {
			o.OnStepElapsed(*fired)
		}
	}
	st, err := o.Engine.TimerStatus(ctx, s.ID)
	if err != nil || st == nil {
		return nil, err
	}
	if o.OnTick != nil {
		o.OnTick(*st)
	}
	return st, nil
}

func (o Observer) session(ctx context.Context) (*domain.BrewSession, error) {
	if o.SessionID != "" {
		return o.Engine.GetSession(ctx, o.SessionID)
	}
	return o.Engine.ActiveSession(ctx)
}

// Run ticks until ctx is canceled. A failed tick is logged and the next one retries.
func (o Observer) Run(ctx context.Context) error {
	interval := o.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := o.Tick(ctx); err != nil {
			o.Engine.logger().Warn("timer tick failed", "session_id", o.SessionID, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
