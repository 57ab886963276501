// Package loader handles configuration file loading and validation.
//
// Configuration is YAML with environment-variable expansion. Every field
// has a default, so an empty file (or no file at all) yields a runnable
// configuration.
package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/shakewatch/config"
	"github.com/xtxerr/shakewatch/internal/errors"
)

// =============================================================================
// Config
// =============================================================================

// Config is the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Scan      ScanConfig      `yaml:"scan"`
	Feed      FeedConfig      `yaml:"feed"`
	Correlate CorrelateConfig `yaml:"correlate"`
	Retention RetentionConfig `yaml:"retention"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DataConfig locates the durable state.
type DataConfig struct {
	// CachePath is the snapshot metadata cache database.
	CachePath string `yaml:"cache_path"`

	// EventPath is the earthquake event catalog database.
	EventPath string `yaml:"event_path"`

	// SnapshotRoot is the directory holding the date-sharded snapshots.
	SnapshotRoot string `yaml:"snapshot_root"`
}

// ScanConfig controls the periodic snapshot rescan.
type ScanConfig struct {
	IntervalSec int `yaml:"interval_sec"`
}

// FeedConfig controls the earthquake catalog poll.
type FeedConfig struct {
	IntervalSec  int    `yaml:"interval_sec"`
	TimeoutSec   int    `yaml:"timeout_sec"`
	MinIntensity int    `yaml:"min_intensity"`
	ListURL      string `yaml:"list_url"`
	DetailURL    string `yaml:"detail_url"`
}

// CorrelateConfig sets the asymmetric correlation window. Shaking shows up
// in snapshots for minutes after a quake but barely before it, so the
// after side is much wider.
type CorrelateConfig struct {
	WindowBeforeSec int `yaml:"window_before_sec"`
	WindowAfterSec  int `yaml:"window_after_sec"`
}

// RetentionConfig sets the deletion policy thresholds.
type RetentionConfig struct {
	MinPeakAmplitude float64 `yaml:"min_peak_amplitude"`
	WindowSec        int     `yaml:"window_sec"`
	MinMagnitude     float64 `yaml:"min_magnitude"`
}

// MetricsConfig controls the Prometheus endpoint. An empty listen address
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			CachePath:    config.DefaultCachePath,
			EventPath:    config.DefaultEventPath,
			SnapshotRoot: config.DefaultSnapshotRoot,
		},
		Scan: ScanConfig{
			IntervalSec: config.DefaultScanIntervalSec,
		},
		Feed: FeedConfig{
			IntervalSec:  config.DefaultFeedIntervalSec,
			TimeoutSec:   int(config.DefaultFeedTimeout / time.Second),
			MinIntensity: config.DefaultMinIntensity,
		},
		Correlate: CorrelateConfig{
			WindowBeforeSec: int(config.DefaultWindowBefore / time.Second),
			WindowAfterSec:  int(config.DefaultWindowAfter / time.Second),
		},
		Retention: RetentionConfig{
			MinPeakAmplitude: config.DefaultMinAmplitude,
			WindowSec:        int(config.DefaultRetentionWindow / time.Second),
			MinMagnitude:     config.DefaultMinMagnitude,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// Load
// =============================================================================

// Load reads a YAML configuration file over the defaults. Environment
// variables in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %v: %w", err, errors.ErrInvalidConfig)
	}

	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate checks the configuration for values that cannot work.
func Validate(cfg *Config) error {
	if cfg.Data.CachePath == "" {
		return errors.NewValidation("data.cache_path", "cannot be empty")
	}
	if cfg.Data.EventPath == "" {
		return errors.NewValidation("data.event_path", "cannot be empty")
	}
	if cfg.Data.SnapshotRoot == "" {
		return errors.NewValidation("data.snapshot_root", "cannot be empty")
	}
	if cfg.Scan.IntervalSec <= 0 {
		return errors.NewValidation("scan.interval_sec", "must be positive")
	}
	if cfg.Feed.IntervalSec <= 0 {
		return errors.NewValidation("feed.interval_sec", "must be positive")
	}
	if cfg.Feed.TimeoutSec <= 0 {
		return errors.NewValidation("feed.timeout_sec", "must be positive")
	}
	if cfg.Correlate.WindowBeforeSec < 0 || cfg.Correlate.WindowAfterSec < 0 {
		return errors.NewValidation("correlate", "window seconds cannot be negative")
	}
	if cfg.Correlate.WindowBeforeSec == 0 && cfg.Correlate.WindowAfterSec == 0 {
		return errors.NewValidation("correlate", "window cannot be empty on both sides")
	}
	if cfg.Retention.MinPeakAmplitude <= 0 {
		return errors.NewValidation("retention.min_peak_amplitude", "must be positive")
	}
	if cfg.Retention.WindowSec <= 0 {
		return errors.NewValidation("retention.window_sec", "must be positive")
	}
	return nil
}

// =============================================================================
// Derived values
// =============================================================================

// ScanInterval returns the rescan period.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scan.IntervalSec) * time.Second
}

// FeedInterval returns the catalog poll period.
func (c *Config) FeedInterval() time.Duration {
	return time.Duration(c.Feed.IntervalSec) * time.Second
}

// FeedTimeout returns the per-request catalog fetch timeout.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSec) * time.Second
}

// WindowBefore returns the correlation window's leading side.
func (c *Config) WindowBefore() time.Duration {
	return time.Duration(c.Correlate.WindowBeforeSec) * time.Second
}

// WindowAfter returns the correlation window's trailing side.
func (c *Config) WindowAfter() time.Duration {
	return time.Duration(c.Correlate.WindowAfterSec) * time.Second
}

// RetentionWindow returns the symmetric protection window.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Retention.WindowSec) * time.Second
}
