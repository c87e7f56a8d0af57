package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.BackendSQLite, cfg.Storage.KVBackend)
	assert.True(t, cfg.Tracking.Handoff)
	assert.Equal(t, 14, cfg.Tracking.TargetFermentationDays)
	assert.Equal(t, 14, cfg.Tracking.TargetConditioningDays)
	assert.Equal(t, time.Hour, cfg.Timer.StaleAfter)
	assert.Equal(t, time.Second, cfg.Timer.Tick)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Notifications.MinLead)
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("tracking:\n  handoff: false\nnotifications:\n  enabled: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Tracking.Handoff)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, 14, cfg.Tracking.TargetFermentationDays)
	assert.Equal(t, time.Hour, cfg.Timer.StaleAfter)
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":   "storage:\n  kv_backend: redis\n",
		"badger":    "storage:\n  kv_backend: badger\n  badger_dir: \"\"\n",
		"target":    "tracking:\n  target_fermentation_days: 0\n",
		"stale":     "timer:\n  stale_after: 0s\n",
		"level":     "log:\n  level: loud\n",
		"format":    "log:\n  format: xml\n",
		"malformed": "timer: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(config.Path(dir), []byte("storage:\n  kv_backend: badger\n"), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.BackendBadger, cfg.Storage.KVBackend)
	assert.Equal(t, dir+"/.brewline/kv", cfg.BadgerPath(dir))
}

func TestMarshalRoundTrip(t *testing.T) {
	out, err := config.Default().Marshal()
	require.NoError(t, err)
	cfg, err := config.FromYAML(out)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
