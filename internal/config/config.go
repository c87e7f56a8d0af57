package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models brewline.yml.
type Config struct {
	Storage struct {
		KVBackend string `yaml:"kv_backend"`
		BadgerDir string `yaml:"badger_dir"`
	} `yaml:"storage"`
	Tracking struct {
		Handoff                bool `yaml:"handoff"`
		TargetFermentationDays int  `yaml:"target_fermentation_days"`
		TargetConditioningDays int  `yaml:"target_conditioning_days"`
	} `yaml:"tracking"`
	Timer struct {
		StaleAfter time.Duration `yaml:"stale_after"`
		Tick       time.Duration `yaml:"tick"`
	} `yaml:"timer"`
	Notifications struct {
		Enabled      bool          `yaml:"enabled"`
		MinLead      time.Duration `yaml:"min_lead"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"notifications"`
	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with bl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.KVBackend {
	case BackendSQLite:
	case BackendBadger:
		if c.Storage.BadgerDir == "" {
			return fmt.Errorf("config.storage.badger_dir is required for the badger backend")
		}
	default:
		return fmt.Errorf("config.storage.kv_backend must be %q or %q", BackendSQLite, BackendBadger)
	}
	if c.Tracking.TargetFermentationDays <= 0 {
		return fmt.Errorf("config.tracking.target_fermentation_days must be positive")
	}
	if c.Tracking.TargetConditioningDays <= 0 {
		return fmt.Errorf("config.tracking.target_conditioning_days must be positive")
	}
	if c.Timer.StaleAfter <= 0 {
		return fmt.Errorf("config.timer.stale_after must be positive")
	}
	if c.Timer.Tick <= 0 {
		return fmt.Errorf("config.timer.tick must be positive")
	}
	if c.Notifications.MinLead < 0 {
		return fmt.Errorf("config.notifications.min_lead must not be negative")
	}
	if c.Notifications.PollInterval <= 0 {
		return fmt.Errorf("config.notifications.poll_interval must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "brewline.yml")
}

// BadgerPath resolves storage.badger_dir against the workspace.
func (c *Config) BadgerPath(workspace string) string {
	if filepath.IsAbs(c.Storage.BadgerDir) {
		return c.Storage.BadgerDir
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, c.Storage.BadgerDir)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent from data
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Marshal renders the effective config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `storage:
  # sqlite keeps everything in .brewline/brewline.db; badger moves sessions,
  # recipes and task templates to a separate key-value directory.
  kv_backend: sqlite
  badger_dir: .brewline/kv

tracking:
  # create a brew record when a brew-day session completes
  handoff: true
  target_fermentation_days: 14
  target_conditioning_days: 14

timer:
  # expired step timers older than this are cleared on read
  stale_after: 1h
  tick: 1s

notifications:
  enabled: true
  min_lead: 10s
  poll_interval: 2s

log:
  level: info
  format: text
`
