package app_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewline/internal/app"
	"brewline/internal/config"
	"brewline/internal/domain"
)

func TestOpenWiresBothBackends(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			cfg := config.Default()
			cfg.Storage.KVBackend = backend
			a, err := app.Open(ctx, dir, cfg, nil)
			require.NoError(t, err)

			require.NoError(t, a.Engine.Recipes.Put(ctx, domain.Recipe{ID: "r1", Name: "Bitter", BoilTime: 60}))
			s, err := a.Engine.StartSessionForRecipe(ctx, "r1")
			require.NoError(t, err)
			id, err := a.ResolveSession(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, s.ID, id)
			require.NoError(t, a.Close())

			reopened, err := app.Open(ctx, dir, cfg, nil)
			require.NoError(t, err)
			defer reopened.Close()
			got, err := reopened.Engine.GetSession(ctx, s.ID)
			require.NoError(t, err)
			require.NotNil(t, got, "sessions persist across restarts")
		})
	}
}

func TestResolveSessionWithoutActive(t *testing.T) {
	a, err := app.Open(context.Background(), t.TempDir(), nil, nil)
	require.NoError(t, err)
	defer a.Close()
	_, err = a.ResolveSession(context.Background(), "")
	assert.Error(t, err)
	id, err := a.ResolveSession(context.Background(), "explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", id)
}

func TestCleanText(t *testing.T) {
	got, err := app.CleanText("  add gypsum  ")
	require.NoError(t, err)
	assert.Equal(t, "add gypsum", got)

	_, err = app.CleanText("   ")
	var verr *app.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "nonblank", verr.Fields["text"])

	_, err = app.CleanText(strings.Repeat("x", 501))
	assert.Error(t, err)
}

func TestGravityAndMeasurementInput(t *testing.T) {
	g, err := app.ParseGravity("1.052")
	require.NoError(t, err)
	assert.Equal(t, 1.052, g)
	_, err = app.ParseGravity("abc")
	assert.Error(t, err)
	_, err = app.ParseGravity("52")
	assert.Error(t, err)

	m, err := app.MeasurementInput{Type: "og", Value: 1.048}.Measurement()
	require.NoError(t, err)
	assert.Equal(t, domain.MeasurementOG, m.Type)
	_, err = app.MeasurementInput{Type: "fg", Value: 12}.Measurement()
	assert.Error(t, err)
	_, err = app.MeasurementInput{Type: "colour", Value: 12}.Measurement()
	assert.Error(t, err)
	_, err = app.MeasurementInput{Type: "temperature", Value: 19}.Measurement()
	assert.NoError(t, err)
}

func TestRecipeAndTimerInput(t *testing.T) {
	assert.NoError(t, app.RecipeInput{Name: "Mild", BoilTime: 60}.Validate())
	assert.Error(t, app.RecipeInput{Name: " ", BoilTime: 60}.Validate())
	assert.Error(t, app.RecipeInput{Name: "Mild", BoilTime: -5}.Validate())
	assert.Error(t, app.RecipeInput{Name: "Mild", OG: 2}.Validate())

	_, err := app.TimerSeconds(-1)
	assert.Error(t, err)
	n, err := app.TimerSeconds(2700)
	require.NoError(t, err)
	assert.Equal(t, 2700, n)

	days, err := app.TargetDays(nil)
	require.NoError(t, err)
	assert.Nil(t, days)
	zero := 0
	_, err = app.TargetDays(&zero)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := app.NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "session_id", "s1")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"session_id":"s1"`)
}
