// Package store provides database operations for the shakewatch application.
//
// This file computes signal statistics over the cached peak amplitudes.
package store

import (
	"fmt"

	"github.com/DataDog/sketches-go/ddsketch"
)

// sketchAccuracy is the relative accuracy of the amplitude quantile sketch.
const sketchAccuracy = 0.01

// SignalStats summarizes the peak-amplitude distribution of the cache.
type SignalStats struct {
	// Total is the number of cached snapshots.
	Total int

	// WithSignal is the number of snapshots carrying a peak amplitude.
	WithSignal int

	// Correlated is the number of snapshots with a correlated event.
	Correlated int

	Min float64
	Max float64
	Avg float64

	// P50/P90/P99 are amplitude quantiles from a DDSketch over all
	// non-null peak amplitudes. Zero when no snapshot carries a signal.
	P50 float64
	P90 float64
	P99 float64
}

// SignalStats computes statistics over all cached snapshots.
func (s *SnapshotStore) SignalStats() (*SignalStats, error) {
	stats := &SignalStats{}

	err := s.db.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(peak_amplitude),
		       COUNT(event_id),
		       COALESCE(MIN(peak_amplitude), 0),
		       COALESCE(MAX(peak_amplitude), 0),
		       COALESCE(AVG(peak_amplitude), 0)
		FROM snapshots
	`).Scan(&stats.Total, &stats.WithSignal, &stats.Correlated,
		&stats.Min, &stats.Max, &stats.Avg)
	if err != nil {
		return nil, fmt.Errorf("signal statistics: %w", err)
	}

	if stats.WithSignal == 0 {
		return stats, nil
	}

	sketch, err := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	if err != nil {
		return nil, fmt.Errorf("create sketch: %w", err)
	}

	rows, err := s.db.db.Query(`SELECT peak_amplitude FROM snapshots WHERE peak_amplitude IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("signal statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var peak float64
		if err := rows.Scan(&peak); err != nil {
			return nil, fmt.Errorf("scan amplitude: %w", err)
		}
		if err := sketch.Add(peak); err != nil {
			return nil, fmt.Errorf("sketch amplitude: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	quantiles, err := sketch.GetValuesAtQuantiles([]float64{0.5, 0.9, 0.99})
	if err != nil {
		return nil, fmt.Errorf("sketch quantiles: %w", err)
	}
	stats.P50, stats.P90, stats.P99 = quantiles[0], quantiles[1], quantiles[2]

	return stats, nil
}
