package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/shakewatch/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_EmptyFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	want := DefaultConfig()
	if *cfg != *want {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoad_OverridesMergeOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
data:
  snapshot_root: /srv/snapshots
scan:
  interval_sec: 15
retention:
  min_magnitude: 4.5
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Data.SnapshotRoot != "/srv/snapshots" {
		t.Errorf("SnapshotRoot = %q", cfg.Data.SnapshotRoot)
	}
	if cfg.Scan.IntervalSec != 15 {
		t.Errorf("IntervalSec = %d, want 15", cfg.Scan.IntervalSec)
	}
	if cfg.Retention.MinMagnitude != 4.5 {
		t.Errorf("MinMagnitude = %v, want 4.5", cfg.Retention.MinMagnitude)
	}
	// Untouched sections keep their defaults.
	if cfg.Feed.IntervalSec != DefaultConfig().Feed.IntervalSec {
		t.Errorf("Feed.IntervalSec = %d, want default", cfg.Feed.IntervalSec)
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("SHAKEWATCH_DATA", "/var/lib/shakewatch")

	cfg, err := Load(writeConfig(t, `
data:
  cache_path: ${SHAKEWATCH_DATA}/cache.db
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Data.CachePath != "/var/lib/shakewatch/cache.db" {
		t.Errorf("CachePath = %q", cfg.Data.CachePath)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "data: [unbalanced"))
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty cache path", func(c *Config) { c.Data.CachePath = "" }},
		{"empty snapshot root", func(c *Config) { c.Data.SnapshotRoot = "" }},
		{"zero scan interval", func(c *Config) { c.Scan.IntervalSec = 0 }},
		{"negative feed interval", func(c *Config) { c.Feed.IntervalSec = -1 }},
		{"zero feed timeout", func(c *Config) { c.Feed.TimeoutSec = 0 }},
		{"negative window", func(c *Config) { c.Correlate.WindowBeforeSec = -5 }},
		{"empty window", func(c *Config) {
			c.Correlate.WindowBeforeSec = 0
			c.Correlate.WindowAfterSec = 0
		}},
		{"zero amplitude", func(c *Config) { c.Retention.MinPeakAmplitude = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); !errors.Is(err, errors.ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDerivedDurations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ScanInterval().Seconds() != 60 {
		t.Errorf("ScanInterval = %v", cfg.ScanInterval())
	}
	if cfg.WindowBefore().Seconds() != 30 || cfg.WindowAfter().Seconds() != 240 {
		t.Errorf("window = (%v, %v)", cfg.WindowBefore(), cfg.WindowAfter())
	}
	if cfg.RetentionWindow().Minutes() != 10 {
		t.Errorf("RetentionWindow = %v", cfg.RetentionWindow())
	}
}
