package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewline/internal/domain"
	"brewline/internal/engine"
)

func TestRemainingTimeIsPureFunctionOfDeadline(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	st, err := env.Engine.StartStepTimer(env.Ctx, s.ID, 300)
	require.NoError(t, err)
	require.True(t, st.Running)
	assert.Equal(t, 300, st.Remaining)

	elapsed := []time.Duration{0, 400 * time.Millisecond, 600 * time.Millisecond, 10 * time.Second, 299 * time.Second, 301 * time.Second}
	start := env.Clock.Now()
	for _, dt := range elapsed {
		env.Clock.t = start.Add(dt)
		want := max(0, int((300*time.Second-dt+500*time.Millisecond)/time.Second))
		for range 3 {
			got, err := env.Engine.GetRemainingTime(env.Ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, want, got, "after %s", dt)
		}
	}
}

func TestNoTimerMeansZero(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	got, err := env.Engine.GetRemainingTime(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestStartReplacesNotification(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	first, err := env.Engine.StartStepTimer(env.Ctx, s.ID, 600)
	require.NoError(t, err)
	firstHandle := env.session(t, s.ID).CurrentStepNotificationID
	require.NotEmpty(t, firstHandle)

	_, err = env.Engine.StartStepTimer(env.Ctx, s.ID, 1200)
	require.NoError(t, err)
	pending := env.pending(t)
	require.Len(t, pending, 1)
	assert.NotEqual(t, firstHandle, pending[0].ID)
	assert.Equal(t, domain.NotifyBrewStep, pending[0].Kind)
	assert.Contains(t, pending[0].Body, "Prepare Equipment")
	assert.Equal(t, env.Clock.Now().Add(1200*time.Second).UnixMilli(), pending[0].FireAt.UnixMilli())
	assert.Equal(t, "Prepare Equipment", first.StepName)
}

func TestPauseAndResume(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	_, err := env.Engine.StartStepTimer(env.Ctx, s.ID, 600)
	require.NoError(t, err)
	env.Clock.Advance(100 * time.Second)

	paused, err := env.Engine.PauseStepTimer(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, paused.Running)
	assert.Equal(t, 500, paused.Remaining)
	assert.Nil(t, env.session(t, s.ID).CurrentStepTargetTs)
	assert.Empty(t, env.pending(t))

	env.Clock.Advance(time.Hour)
	got, err := env.Engine.GetRemainingTime(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, got, "a paused timer reports nothing running")

	resumed, err := env.Engine.ResumeStepTimer(env.Ctx, s.ID, paused.Remaining)
	require.NoError(t, err)
	assert.Equal(t, 500, resumed.Remaining)
	env.Clock.Advance(200 * time.Second)
	got, err = env.Engine.GetRemainingTime(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, got)
}

func TestClearStepTimer(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	_, err := env.Engine.StartStepTimer(env.Ctx, s.ID, 600)
	require.NoError(t, err)
	st, err := env.Engine.ClearStepTimer(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 0, st.Remaining)
	assert.Empty(t, env.pending(t))
}

func TestStaleTimerSelfHeals(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	_, err := env.Engine.StartStepTimer(env.Ctx, s.ID, 60)
	require.NoError(t, err)

	env.Clock.Advance(30 * time.Minute)
	got, err := env.Engine.GetRemainingTime(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.NotNil(t, env.session(t, s.ID).CurrentStepTargetTs, "recently expired timers are kept")

	env.Clock.Advance(2 * time.Hour)
	got, err = env.Engine.GetRemainingTime(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, got)
	healed := env.session(t, s.ID)
	assert.Nil(t, healed.CurrentStepTargetTs)
	assert.Empty(t, healed.CurrentStepNotificationID)
	assert.Empty(t, env.pending(t))
	assert.False(t, healed.Steps[0].Completed, "a healed timer does not complete the step")
}

func TestStepElapsedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	st, err := env.Engine.StartStepTimer(env.Ctx, s.ID, 30)
	require.NoError(t, err)
	deadline := *st.TargetTs

	early, err := env.Engine.StepElapsed(env.Ctx, s.ID, deadline)
	require.NoError(t, err)
	assert.Nil(t, early, "not reached yet")

	env.Clock.Advance(31 * time.Second)
	wrong, err := env.Engine.StepElapsed(env.Ctx, s.ID, deadline+1)
	require.NoError(t, err)
	assert.Nil(t, wrong)

	fired, err := env.Engine.StepElapsed(env.Ctx, s.ID, deadline)
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.True(t, fired.Steps[0].Completed)
	assert.Nil(t, fired.CurrentStepTargetTs)
	assert.Equal(t, 0, fired.CurrentStepIndex, "elapsed steps do not auto-advance")

	again, err := env.Engine.StepElapsed(env.Ctx, s.ID, deadline)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestBitteringBoilScenario(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	require.Equal(t, 45, s.Steps[5].Duration)

	moved, err := env.Engine.GoToStep(env.Ctx, s.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 5, moved.CurrentStepIndex)
	_, err = env.Engine.StartStepTimer(env.Ctx, s.ID, 2700)
	require.NoError(t, err)
	got, err := env.Engine.GetRemainingTime(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2700, got)

	fires := 0
	var ticks []int
	obs := engine.Observer{
		Engine:        env.Engine,
		OnTick:        func(st engine.TimerState) { ticks = append(ticks, st.Remaining) },
		OnStepElapsed: func(domain.BrewSession) { fires++ },
	}
	_, err = obs.Tick(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fires)

	env.Clock.Advance(2701 * time.Second)
	for range 3 {
		_, err := obs.Tick(env.Ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fires)
	assert.Equal(t, []int{2700, 0, 0, 0}, ticks)

	got, err = env.Engine.GetRemainingTime(env.Ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, got)
	after := env.session(t, s.ID)
	assert.True(t, after.Steps[5].Completed)
	assert.Nil(t, after.CurrentStepTargetTs)
}

func TestObserverFiresAfterLongSuspension(t *testing.T) {
	env := newTestEnv(t)
	s := env.start(t, 60)
	_, err := env.Engine.StartStepTimer(env.Ctx, s.ID, 60)
	require.NoError(t, err)

	fires := 0
	obs := engine.Observer{
		Engine:        env.Engine,
		SessionID:     s.ID,
		OnStepElapsed: func(domain.BrewSession) { fires++ },
	}
	env.Clock.Advance(2 * time.Hour)
	st, err := obs.Tick(env.Ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Zero(t, st.Remaining)
	assert.Equal(t, 1, fires)

	after := env.session(t, s.ID)
	assert.True(t, after.Steps[0].Completed)
	assert.Nil(t, after.CurrentStepTargetTs)

	_, err = obs.Tick(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fires)
}

func TestObserverWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	st, err := engine.Observer{Engine: env.Engine}.Tick(env.Ctx)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestObserverRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.start(t, 60)
	ctx, cancel := context.WithCancel(env.Ctx)
	ticked := make(chan struct{}, 1)
	obs := engine.Observer{
		Engine:   env.Engine,
		Interval: time.Millisecond,
		OnTick: func(engine.TimerState) {
			select {
			case ticked <- struct{}{}:
			default:
			}
		},
	}
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()
	<-ticked
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
