package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewline/internal/domain"
	"brewline/internal/engine"
)

const day = 24 * time.Hour

func TestBrewLifecycle(t *testing.T) {
	env := newTestEnv(t)
	tr := env.Engine.Tracker
	b, err := tr.StartNewBrew(env.Ctx, engine.NewBrewOptions{RecipeName: "Saison"})
	require.NoError(t, err)
	assert.Equal(t, domain.BrewBrewing, b.Status)
	assert.Equal(t, 14, b.TargetFermentationDays)
	assert.Equal(t, 14, b.TargetConditioningDays)
	assert.Equal(t, 5.0, engine.BrewProgress(b, env.Clock.Now()))
	assert.Equal(t, 0, engine.FermentationDay(b, env.Clock.Now().Add(3*day)))

	env.Clock.Advance(6 * time.Hour)
	temp := 19.5
	fermenting, err := tr.StartFermentation(env.Ctx, b.ID, 1.050, &temp, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BrewFermenting, fermenting.Status)
	require.NotNil(t, fermenting.FermentationStart)
	assert.True(t, fermenting.FermentationStart.Equal(env.Clock.Now()))
	assert.Nil(t, fermenting.MeasuredABV)
	assert.Equal(t, 19.5, *fermenting.FermentationTemp)

	pending := env.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.NotifyFermentation, pending[0].Kind)
	assert.True(t, pending[0].FireAt.Equal(env.Clock.Now().AddDate(0, 0, 14)))

	env.Clock.Advance(10 * day)
	view := tr.View(*fermenting)
	assert.Equal(t, 10, view.FermentationDay)
	assert.InDelta(t, 40.71, view.Progress, 0.01)

	conditioning, err := tr.StartConditioning(env.Ctx, b.ID, 1.010, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BrewConditioning, conditioning.Status)
	require.NotNil(t, conditioning.ActualFermentationDays)
	assert.Equal(t, 10, *conditioning.ActualFermentationDays)
	require.NotNil(t, conditioning.MeasuredABV)
	assert.InDelta(t, 5.3, *conditioning.MeasuredABV, 1e-9)

	pending = env.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.NotifyConditioning, pending[0].Kind)

	env.Clock.Advance(30 * day)
	stored, err := tr.GetBrew(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, *stored.ActualFermentationDays, "frozen at the transition")
	assert.Equal(t, 100.0, engine.BrewProgress(*stored, env.Clock.Now()))

	completed, err := tr.CompleteBrew(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BrewCompleted, completed.Status)
	require.NotNil(t, completed.PackagingDate)
	assert.Equal(t, 30, *completed.ActualConditioningDays)
	assert.Equal(t, 10, *completed.ActualFermentationDays)
	assert.Empty(t, env.pending(t))

	archived, err := tr.ArchiveBrew(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BrewArchived, archived.Status)
	assert.Equal(t, 100.0, engine.BrewProgress(*archived, env.Clock.Now()))

	_, err = tr.StartFermentation(env.Ctx, b.ID, 1.040, nil, nil)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
	_, err = tr.CompleteBrew(env.Ctx, b.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)

	events, err := env.Repo.LatestEvents(env.Ctx, 20, "", "brew", b.ID)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestInvalidTransitionLeavesRecordUnchanged(t *testing.T) {
	env := newTestEnv(t)
	tr := env.Engine.Tracker
	b, err := tr.StartNewBrew(env.Ctx, engine.NewBrewOptions{RecipeName: "Porter"})
	require.NoError(t, err)
	_, err = tr.StartConditioning(env.Ctx, b.ID, 1.012, nil)
	require.ErrorIs(t, err, engine.ErrInvalidTransition)
	_, err = tr.ArchiveBrew(env.Ctx, b.ID)
	require.ErrorIs(t, err, engine.ErrInvalidTransition)
	stored, err := tr.GetBrew(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BrewBrewing, stored.Status)
	assert.Nil(t, stored.ConditioningStart)
	assert.Nil(t, stored.FinalGravity)
}

func TestTargetOverrides(t *testing.T) {
	env := newTestEnv(t)
	tr := env.Engine.Tracker
	b, err := tr.StartNewBrew(env.Ctx, engine.NewBrewOptions{RecipeName: "Kölsch", TargetFermentationDays: 21, TargetConditioningDays: 28})
	require.NoError(t, err)
	assert.Equal(t, 21, b.TargetFermentationDays)
	days := 10
	f, err := tr.StartFermentation(env.Ctx, b.ID, 1.046, nil, &days)
	require.NoError(t, err)
	assert.Equal(t, 10, f.TargetFermentationDays)
	assert.True(t, engine.EstimatedCompletion(*f).Equal(f.FermentationStart.AddDate(0, 0, 38)))
}

func TestQuickNotesAndMeasurements(t *testing.T) {
	env := newTestEnv(t)
	tr := env.Engine.Tracker
	b, err := tr.StartNewBrew(env.Ctx, engine.NewBrewOptions{RecipeName: "Dubbel"})
	require.NoError(t, err)
	_, err = tr.AddQuickNote(env.Ctx, b.ID, "krausen high")
	require.NoError(t, err)
	updated, err := tr.AddMeasurement(env.Ctx, b.ID, engine.MeasurementInput{Type: domain.MeasurementTemperature, Value: 20.5, Unit: "C"})
	require.NoError(t, err)
	require.Len(t, updated.QuickNotes, 1)
	assert.Equal(t, "krausen high", updated.QuickNotes[0].Text)
	require.Len(t, updated.Measurements, 1)
	assert.Equal(t, "C", updated.Measurements[0].Unit)

	missing, err := tr.AddQuickNote(env.Ctx, "nope", "x")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteBrewCancelsReminders(t *testing.T) {
	env := newTestEnv(t)
	tr := env.Engine.Tracker
	b, err := tr.StartNewBrew(env.Ctx, engine.NewBrewOptions{RecipeName: "Helles"})
	require.NoError(t, err)
	_, err = tr.StartFermentation(env.Ctx, b.ID, 1.048, nil, nil)
	require.NoError(t, err)
	require.Len(t, env.pending(t), 1)

	ok, err := tr.DeleteBrew(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, env.pending(t))

	ok, err = tr.DeleteBrew(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	gone, err := tr.GetBrew(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestListBrewsSplitsActive(t *testing.T) {
	env := newTestEnv(t)
	tr := env.Engine.Tracker
	old, err := tr.StartNewBrew(env.Ctx, engine.NewBrewOptions{RecipeName: "Old Ale"})
	require.NoError(t, err)
	_, err = tr.CompleteBrew(env.Ctx, old.ID)
	require.NoError(t, err)
	env.Clock.Advance(day)
	fresh, err := tr.StartNewBrew(env.Ctx, engine.NewBrewOptions{RecipeName: "Wit"})
	require.NoError(t, err)

	active, archived, err := tr.ListBrews(env.Ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)
	require.Len(t, archived, 1)
	assert.Equal(t, old.ID, archived[0].ID)
	assert.Nil(t, archived[0].ActualConditioningDays, "never conditioned")
}

func TestProgressMonotonicAndCapped(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	caps := map[domain.BrewStatus]float64{
		domain.BrewBrewing:      5,
		domain.BrewFermenting:   55,
		domain.BrewConditioning: 100,
		domain.BrewCompleted:    100,
		domain.BrewArchived:     100,
	}
	for status, limit := range caps {
		b := domain.BrewRecord{
			Status:                 status,
			BrewDate:               start,
			FermentationStart:      &start,
			ConditioningStart:      &start,
			TargetFermentationDays: 14,
			TargetConditioningDays: 14,
		}
		prev := -1.0
		for d := -3; d <= 60; d++ {
			p := engine.BrewProgress(b, start.Add(time.Duration(d)*day))
			assert.GreaterOrEqual(t, p, prev, "%s day %d", status, d)
			assert.LessOrEqual(t, p, limit, "%s day %d", status, d)
			assert.GreaterOrEqual(t, p, 0.0)
			prev = p
		}
		assert.Equal(t, limit, prev, "%s reaches its cap", status)
	}
}

func TestProgressZeroTargetTreatedAsOneDay(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := domain.BrewRecord{Status: domain.BrewFermenting, BrewDate: start, FermentationStart: &start}
	assert.Equal(t, 5.0, engine.BrewProgress(b, start))
	assert.Equal(t, 55.0, engine.BrewProgress(b, start.Add(day)))
}

func TestFermentationDayFallsBackToBrewDate(t *testing.T) {
	brewDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := domain.BrewRecord{Status: domain.BrewFermenting, BrewDate: brewDate}
	assert.Equal(t, 4, engine.FermentationDay(b, brewDate.Add(4*day+time.Hour)))
	assert.Equal(t, 0, engine.FermentationDay(b, brewDate.Add(-2*day)), "clock skew never goes negative")
	assert.True(t, engine.EstimatedCompletion(domain.BrewRecord{BrewDate: brewDate, TargetFermentationDays: 14, TargetConditioningDays: 14}).
		Equal(brewDate.AddDate(0, 0, 28)))
}
