// Package retention applies the destructive cleanup policy: snapshots with
// a high peak amplitude that do not coincide with any real earthquake are
// presumed to be local noise (trucks, doors, sensor bumps) and can be
// removed. Deletion is irreversible, so the selection rule is conservative
// and every caller gets a dry-run mode.
package retention

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xtxerr/shakewatch/internal/logging"
	"github.com/xtxerr/shakewatch/internal/store"
	"github.com/xtxerr/shakewatch/internal/timeutil"
)

// Policy is the retention selection rule.
type Policy struct {
	// MinPeakAmplitude selects snapshots whose peak reading is at or
	// above this value. Low-amplitude snapshots are never deleted.
	MinPeakAmplitude float64

	// Window protects a snapshot captured within this duration on either
	// side of a qualifying event's occurrence time.
	Window time.Duration

	// MinMagnitude is the smallest event magnitude that protects
	// surrounding snapshots.
	MinMagnitude float64
}

// Engine selects and deletes retention candidates.
type Engine struct {
	root   string
	snaps  *store.SnapshotStore
	events *store.EventStore
	log    *slog.Logger
}

// New creates a retention engine rooted at the snapshot directory.
func New(root string, snaps *store.SnapshotStore, events *store.EventStore) *Engine {
	return &Engine{
		root:   root,
		snaps:  snaps,
		events: events,
		log:    logging.Component("retention"),
	}
}

// SelectForDeletion returns the snapshots the policy condemns: peak
// amplitude at or above the threshold AND no event of sufficient magnitude
// within the protection window of the capture instant.
//
// Selection never touches the filesystem; it is safe to call for preview.
func (e *Engine) SelectForDeletion(policy Policy) ([]store.Snapshot, error) {
	candidates, err := e.snaps.ListFiltered(&policy.MinPeakAmplitude)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	events, err := e.events.ListAll(0)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var protecting []time.Time
	for i := range events {
		if events[i].Magnitude >= policy.MinMagnitude {
			protecting = append(protecting, events[i].OccurredAt)
		}
	}

	var out []store.Snapshot
	for i := range candidates {
		if coveredByAny(candidates[i].CapturedAt, protecting, policy.Window) {
			continue
		}
		out = append(out, candidates[i])
	}
	return out, nil
}

func coveredByAny(instant time.Time, occurrences []time.Time, window time.Duration) bool {
	for _, occurred := range occurrences {
		if timeutil.WithinWindow(instant, occurred, window) {
			return true
		}
	}
	return false
}

// Result reports what a deletion pass did.
type Result struct {
	DryRun     bool
	Candidates int // records considered
	Deleted    int // file and cache row both removed
	Missing    int // cache row removed, backing file was already gone
	Failed     int // records skipped after an error, batch continued
	Compacted  int // empty shard directories removed
}

// Delete removes the condemned snapshots. In dry-run mode it only reports
// what would happen.
//
// Per record, the file removal and the cache-row removal form one logical
// step: a missing file is a warning and the row still goes, but any other
// failure leaves the record in place and moves on to the next. A partial
// failure never aborts the batch. Afterwards, shard directories left empty
// by the deletions are compacted.
func (e *Engine) Delete(ctx context.Context, condemned []store.Snapshot, dryRun bool) (*Result, error) {
	result := &Result{DryRun: dryRun, Candidates: len(condemned)}

	for i := range condemned {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rec := &condemned[i]
		path := filepath.Join(e.root, filepath.FromSlash(rec.FilePath))

		if dryRun {
			e.log.Info("would delete", "file", rec.Filename,
				"peak", deref(rec.Signal.PeakAmplitude), "captured_at", rec.CapturedAt)
			continue
		}

		fileGone := false
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				result.Failed++
				e.log.Error("remove snapshot file", "file", rec.Filename, "error", err)
				continue
			}
			fileGone = true
			e.log.Warn("snapshot file already gone", "file", rec.Filename, "path", path)
		}

		if err := e.snaps.Delete(rec.Filename); err != nil {
			result.Failed++
			e.log.Error("remove cache row", "file", rec.Filename, "error", err)
			continue
		}
		if fileGone {
			result.Missing++
		} else {
			result.Deleted++
		}
	}

	compacted, err := e.CompactEmptyDirs(dryRun)
	if err != nil {
		e.log.Warn("compact shards", "error", err)
	}
	result.Compacted = compacted

	if dryRun {
		e.log.Info("retention dry run", "candidates", result.Candidates, "would_compact", result.Compacted)
	} else {
		e.log.Info("retention pass", "candidates", result.Candidates,
			"deleted", result.Deleted, "missing", result.Missing,
			"failed", result.Failed, "compacted", result.Compacted)
	}
	return result, nil
}

// CompactEmptyDirs removes shard directories left empty by deletion,
// deepest first so a day shard empties its month, which empties its year.
// In dry-run mode it only counts.
func (e *Engine) CompactEmptyDirs(dryRun bool) (int, error) {
	var dirs []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() && path != e.root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// WalkDir is lexical pre-order, so iterating in reverse visits every
	// directory after its children.
	compacted := 0
	removed := make(map[string]bool)
	for i := len(dirs) - 1; i >= 0; i-- {
		empty, err := dirEmpty(dirs[i], removed)
		if err != nil || !empty {
			continue
		}
		if !dryRun {
			if err := os.Remove(dirs[i]); err != nil {
				continue
			}
		}
		removed[dirs[i]] = true
		compacted++
	}
	return compacted, nil
}

// dirEmpty reports whether dir holds nothing, treating entries already
// removed (or counted as removable during a dry run) as gone.
func dirEmpty(dir string, removed map[string]bool) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !removed[filepath.Join(dir, entry.Name())] {
			return false, nil
		}
	}
	return true, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
