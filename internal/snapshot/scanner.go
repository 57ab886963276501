package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xtxerr/shakewatch/config"
	"github.com/xtxerr/shakewatch/internal/codec"
	"github.com/xtxerr/shakewatch/internal/errors"
	"github.com/xtxerr/shakewatch/internal/logging"
	"github.com/xtxerr/shakewatch/internal/store"
)

// extractFunc extracts embedded signal metadata from a snapshot file.
// Swappable so tests can observe which files get re-extracted.
type extractFunc func(path string) (store.Signal, *string, error)

// Scanner keeps the metadata cache in sync with the snapshot directory.
//
// Snapshots live under a YEAR/MM/DD shard tree below the root. A full scan
// enumerates every shard; an incremental scan only descends into shards at
// or after the latest cached date, bounding cost to recent snapshots no
// matter how large the historical corpus grows.
//
// A single Guard covers both scan entry points, so no two rescans run
// concurrently; the loser reports AlreadyRunning and does nothing.
type Scanner struct {
	root  string
	snaps *store.SnapshotStore
	guard Guard

	extract extractFunc
	log     *slog.Logger
}

// NewScanner creates a scanner over the given snapshot root.
func NewScanner(root string, snaps *store.SnapshotStore) *Scanner {
	return &Scanner{
		root:    root,
		snaps:   snaps,
		extract: ExtractMetadata,
		log:     logging.Component("scanner"),
	}
}

// ScanResult reports what a scan did.
type ScanResult struct {
	// AlreadyRunning is true when another scan held the guard and this
	// call was a no-op. All counters are zero in that case.
	AlreadyRunning bool

	// FellBack is true when an incremental scan found an empty cache and
	// degraded to a full scan. This is the documented fallback, not a bug.
	FellBack bool

	Scanned int // snapshot files visited
	Cached  int // files extracted and (re)cached
	Fresh   int // files skipped by the freshness oracle
	Errors  int // per-file failures, logged and skipped
}

// =============================================================================
// Organize
// =============================================================================

// Organize relocates loose snapshot files at the shard root into their
// YEAR/MM/DD shard (derived from the filename codec) and caches them at
// the new path.
//
// The cache row is written only after the move, so a crash between the two
// can never leave a row pointing at a nonexistent path. A file that was
// moved but not yet cached is recovered by the next scan: the freshness
// oracle treats the missing row as stale.
func (s *Scanner) Organize(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read snapshot root: %w", err)
	}

	moved := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		if entry.IsDir() {
			continue
		}

		parsed, ok := codec.Parse(entry.Name())
		if !ok {
			continue
		}

		shardDir := filepath.Join(s.root, shardPath(parsed.Year, parsed.Month, parsed.Day))
		if err := os.MkdirAll(shardDir, 0o755); err != nil {
			s.log.Error("create shard", "dir", shardDir, "error", err)
			continue
		}

		src := filepath.Join(s.root, entry.Name())
		dst := filepath.Join(shardDir, entry.Name())
		if _, err := os.Stat(dst); err == nil {
			s.log.Warn("shard already has file, leaving source in place", "file", entry.Name())
			continue
		}

		if err := os.Rename(src, dst); err != nil {
			s.log.Error("relocate snapshot", "file", entry.Name(), "error", err)
			continue
		}

		if err := s.cacheFile(dst); err != nil {
			// The file is safely in its shard; the next scan re-caches it.
			s.log.Error("cache relocated snapshot", "file", entry.Name(), "error", err)
			continue
		}
		moved++
	}

	return moved, nil
}

// =============================================================================
// Scans
// =============================================================================

// ScanFull enumerates every snapshot under the root and re-extracts any
// file the freshness oracle rejects. Cost is O(total snapshots).
func (s *Scanner) ScanFull(ctx context.Context) (*ScanResult, error) {
	if s.guard.TryAcquire() == AlreadyRunning {
		return &ScanResult{AlreadyRunning: true}, nil
	}
	defer s.guard.Release()

	result := &ScanResult{}
	err := s.scanTree(ctx, s.root, result)
	s.logResult("full", result)
	return result, err
}

// ScanIncremental enumerates only shards whose (year, month, day) is at or
// after the latest cached date, bounding cost to O(recent snapshots).
// With an empty cache it degrades to a full scan.
func (s *Scanner) ScanIncremental(ctx context.Context) (*ScanResult, error) {
	if s.guard.TryAcquire() == AlreadyRunning {
		return &ScanResult{AlreadyRunning: true}, nil
	}
	defer s.guard.Release()

	latest, err := s.snaps.LatestCachedDate()
	if err != nil {
		return &ScanResult{}, err
	}

	result := &ScanResult{}
	if latest == nil {
		result.FellBack = true
		err := s.scanTree(ctx, s.root, result)
		s.logResult("incremental (full fallback)", result)
		return result, err
	}

	err = s.scanShardsFrom(ctx, *latest, result)
	s.logResult("incremental", result)
	return result, err
}

// scanTree walks a directory tree and freshness-checks every snapshot file.
func (s *Scanner) scanTree(ctx context.Context, dir string, result *ScanResult) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		s.scanOne(path, result)
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// scanShardsFrom enumerates YEAR/MM/DD shards not strictly before the
// floor date. Shards before the floor are never visited.
func (s *Scanner) scanShardsFrom(ctx context.Context, floor store.Date, result *ScanResult) error {
	years, err := numericSubdirs(s.root, 4)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, year := range years {
		if year < floor.Year {
			continue
		}
		yearDir := filepath.Join(s.root, fmt.Sprintf("%04d", year))

		months, err := numericSubdirs(yearDir, 2)
		if err != nil {
			continue
		}
		for _, month := range months {
			monthDir := filepath.Join(yearDir, fmt.Sprintf("%02d", month))

			days, err := numericSubdirs(monthDir, 2)
			if err != nil {
				continue
			}
			for _, day := range days {
				shard := store.Date{Year: year, Month: month, Day: day}
				if shard.Before(floor) {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}

				dayDir := filepath.Join(monthDir, fmt.Sprintf("%02d", day))
				entries, err := os.ReadDir(dayDir)
				if err != nil {
					continue
				}
				for _, entry := range entries {
					if entry.IsDir() {
						continue
					}
					s.scanOne(filepath.Join(dayDir, entry.Name()), result)
				}
			}
		}
	}

	return nil
}

// scanOne freshness-checks a single file and re-caches it when stale.
func (s *Scanner) scanOne(path string, result *ScanResult) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, config.DefaultSnapshotExt) {
		return
	}
	if _, ok := codec.Parse(name); !ok {
		return
	}
	result.Scanned++

	info, err := os.Stat(path)
	if err != nil {
		result.Errors++
		s.log.Warn("stat snapshot", "file", name, "error", err)
		return
	}

	fresh, err := s.snaps.IsFresh(name, info.Size())
	if err != nil {
		result.Errors++
		s.log.Error("freshness check", "file", name, "error", err)
		return
	}
	if fresh {
		result.Fresh++
		return
	}

	if err := s.cacheFile(path); err != nil {
		result.Errors++
		s.log.Warn("cache snapshot", "file", name, "error", err)
		return
	}
	result.Cached++
}

// cacheFile extracts metadata and replaces the cache row for one file.
func (s *Scanner) cacheFile(path string) error {
	name := filepath.Base(path)
	parsed, ok := codec.Parse(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, errors.ErrInvalidFilename)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}

	sig, raw, err := s.extract(path)
	if err != nil {
		if errors.IsNotFound(err) {
			return err
		}
		// A snapshot with unreadable metadata is still worth caching:
		// the capture time and fingerprint come from the filename and stat.
		s.log.Warn("extract metadata", "file", name, "error", err)
		sig, raw = store.Signal{}, nil
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return fmt.Errorf("relative path %s: %w", path, err)
	}

	return s.snaps.Upsert(&store.Snapshot{
		Filename:    name,
		FilePath:    filepath.ToSlash(rel),
		Year:        parsed.Year,
		Month:       parsed.Month,
		Day:         parsed.Day,
		Hour:        parsed.Hour,
		Minute:      parsed.Minute,
		Second:      parsed.Second,
		CapturedAt:  parsed.CapturedAt,
		Signal:      sig,
		RawMetadata: raw,
		CreatedAt:   info.ModTime().Unix(),
		FileSize:    info.Size(),
	})
}

func (s *Scanner) logResult(mode string, result *ScanResult) {
	if result.Cached > 0 || result.Errors > 0 {
		s.log.Info("scan complete", "mode", mode,
			"scanned", result.Scanned, "cached", result.Cached,
			"fresh", result.Fresh, "errors", result.Errors)
	} else {
		s.log.Debug("scan complete", "mode", mode, "scanned", result.Scanned)
	}
}

// =============================================================================
// Helpers
// =============================================================================

// shardPath builds the YEAR/MM/DD relative path for a date.
func shardPath(year, month, day int) string {
	return filepath.Join(fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month), fmt.Sprintf("%02d", day))
}

// numericSubdirs lists subdirectory names that are width-digit numbers,
// ascending. Non-numeric directories are ignored.
func numericSubdirs(dir string, width int) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) != width || strings.TrimLeft(name, "0123456789") != "" {
			continue
		}
		n, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		out = append(out, n)
	}

	// ReadDir returns entries sorted by name; zero-padded numeric names
	// are therefore already in ascending numeric order.
	return out, nil
}
