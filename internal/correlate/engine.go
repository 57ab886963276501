// Package correlate links cached snapshots to the earthquake events whose
// time windows cover their capture instants.
//
// All comparisons happen on absolute instants: a snapshot timestamped in
// UTC and an event timestamped in JST correlate correctly because both are
// reduced to the same point on the timeline before any window check.
package correlate

import (
	"context"
	"log/slog"
	"time"

	"github.com/xtxerr/shakewatch/internal/logging"
	"github.com/xtxerr/shakewatch/internal/store"
	"github.com/xtxerr/shakewatch/internal/timeutil"
)

// Engine answers the question "which event does this snapshot belong to".
type Engine struct {
	events *store.EventStore
	snaps  *store.SnapshotStore
	log    *slog.Logger
}

// New creates a correlation engine over the two catalogs.
func New(events *store.EventStore, snaps *store.SnapshotStore) *Engine {
	return &Engine{
		events: events,
		snaps:  snaps,
		log:    logging.Component("correlate"),
	}
}

// Correlate finds the event whose window [occurred-before, occurred+after]
// covers the capture instant. When several windows cover it, the event
// whose occurrence time is nearest to the instant wins.
//
// Returns (nil, nil) when no event covers the instant; absence of a match
// is an answer, not an error.
func (e *Engine) Correlate(capturedAt time.Time, before, after time.Duration) (*store.Event, error) {
	return e.events.FindCovering(capturedAt, before, after)
}

// RecomputeResult reports what a batch recomputation did.
type RecomputeResult struct {
	Snapshots int // snapshot rows examined
	Updated   int // rows whose stored event link changed
}

// RecomputeAll re-derives the stored event link for every cached snapshot
// and persists only the links that changed. It is idempotent: a second run
// over unchanged catalogs updates nothing.
//
// Events are loaded once and their windows precomputed, so cost is
// O(snapshots x events) comparisons with no per-snapshot queries. Each
// snapshot takes the FIRST event (in newest-first catalog order) whose
// window covers it; the on-demand Correlate path instead picks the
// nearest covering event. The two paths can disagree only when windows
// overlap, which needs two quakes within minutes of each other.
func (e *Engine) RecomputeAll(ctx context.Context, before, after time.Duration) (*RecomputeResult, error) {
	events, err := e.events.ListAll(0)
	if err != nil {
		return nil, err
	}

	windows := make([]timeutil.Window, len(events))
	for i := range events {
		windows[i] = timeutil.WindowAround(events[i].OccurredAt, before, after)
	}

	snaps, err := e.snaps.ListFiltered(nil)
	if err != nil {
		return nil, err
	}

	result := &RecomputeResult{Snapshots: len(snaps)}
	for i := range snaps {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var match *string
		for j := range events {
			if windows[j].Contains(snaps[i].CapturedAt) {
				match = &events[j].EventID
				break
			}
		}

		if sameLink(snaps[i].EventID, match) {
			continue
		}
		if err := e.snaps.SetCorrelatedEvent(snaps[i].Filename, match); err != nil {
			return result, err
		}
		result.Updated++
	}

	if result.Updated > 0 {
		e.log.Info("recomputed correlations",
			"snapshots", result.Snapshots, "updated", result.Updated, "events", len(events))
	}
	return result, nil
}

func sameLink(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
