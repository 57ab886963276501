// Package config provides configuration defaults and utilities
// for the shakewatch application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or CLI flags.
package config

import "time"

// =============================================================================
// Scan Defaults
// =============================================================================

const (
	// DefaultScanIntervalSec is how often the snapshot directory is rescanned.
	// The first scan after startup is a full scan; subsequent scans are
	// incremental, bounded by the latest cached date.
	// Override via config: scan.interval_sec
	DefaultScanIntervalSec = 60

	// DefaultSnapshotExt is the file extension recognized by the scanner.
	DefaultSnapshotExt = ".png"
)

// =============================================================================
// Feed Defaults
// =============================================================================

const (
	// DefaultFeedIntervalSec is how often the earthquake catalog is polled.
	// Override via config: feed.interval_sec
	DefaultFeedIntervalSec = 3600

	// DefaultFeedTimeout bounds every catalog HTTP request. A timeout
	// degrades to "no new events this cycle", never a fatal error.
	// Override via config: feed.timeout_sec
	DefaultFeedTimeout = 30 * time.Second

	// DefaultMinIntensity is the minimum JMA intensity to store.
	// Intensity codes 5-/5+/6-/6+ map to 50/55/60/65.
	// Override via config: feed.min_intensity
	DefaultMinIntensity = 3
)

// =============================================================================
// Correlation Defaults
// =============================================================================

const (
	// DefaultWindowBefore is how long before an event's origin time a
	// snapshot may be captured and still correlate with it. Shaking is
	// occasionally plotted slightly before the cataloged origin time.
	// Override via config: correlate.window_before_sec
	DefaultWindowBefore = 30 * time.Second

	// DefaultWindowAfter is how long after an event's origin time a
	// snapshot may be captured and still correlate with it (seismic waves
	// take minutes to reach the station).
	// Override via config: correlate.window_after_sec
	DefaultWindowAfter = 240 * time.Second
)

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultMinAmplitude is the peak-amplitude threshold above which an
	// uncorrelated snapshot becomes a deletion candidate.
	// Override via config: retention.min_peak_amplitude
	DefaultMinAmplitude = 300000

	// DefaultRetentionWindow is the symmetric window around an event's
	// origin time within which snapshots are protected from deletion.
	// Override via config: retention.window_sec
	DefaultRetentionWindow = 10 * time.Minute

	// DefaultMinMagnitude is the minimum magnitude an event needs to
	// protect nearby snapshots from deletion.
	// Override via config: retention.min_magnitude
	DefaultMinMagnitude = 3.0
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultCachePath is the default snapshot metadata database path.
	// Override via config: data.cache_path
	DefaultCachePath = "data/cache.db"

	// DefaultEventPath is the default earthquake catalog database path.
	// Override via config: data.event_path
	DefaultEventPath = "data/quake.db"

	// DefaultSnapshotRoot is the default snapshot directory.
	// Override via config: data.snapshot_root
	DefaultSnapshotRoot = "data/snapshots"
)
