// Package store provides database operations for the shakewatch application.
//
// This file handles the snapshot metadata cache: replace-by-filename upsert,
// the file-size freshness oracle, and the filtered read paths used by the
// correlation and retention engines.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/xtxerr/shakewatch/internal/errors"
	"github.com/xtxerr/shakewatch/internal/timeutil"
)

// =============================================================================
// Snapshot Types
// =============================================================================

// Signal holds the trigger readings embedded in a snapshot.
// All fields are optional: a snapshot without embedded metadata caches
// with a nil signal.
type Signal struct {
	ShortAvg      *float64
	LongAvg       *float64
	Ratio         *float64
	PeakAmplitude *float64
}

// Snapshot is one cached snapshot row.
//
// Filename is the primary key; FilePath is mutable because loose files are
// relocated into date shards after creation. FileSize is the staleness
// fingerprint: a size mismatch (or a missing row) means re-extraction.
// EventID is a weak reference into the event catalog, populated by the
// batch correlation pass and possibly stale until the next pass.
type Snapshot struct {
	Filename string
	FilePath string

	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int

	// CapturedAt is derived solely from the filename grammar. Always UTC.
	CapturedAt time.Time

	Signal      Signal
	RawMetadata *string

	CreatedAt int64 // unix seconds, audit only
	FileSize  int64

	EventID *string
}

// Date identifies a YEAR/MM/DD directory shard.
type Date struct {
	Year  int
	Month int
	Day   int
}

// Before reports whether d sorts strictly before other in (year, month, day)
// order. Shard enumeration uses this to bound incremental scans.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// String returns the shard path form of the date.
func (d Date) String() string {
	return fmt.Sprintf("%04d/%02d/%02d", d.Year, d.Month, d.Day)
}

// =============================================================================
// SnapshotStore
// =============================================================================

// SnapshotStore persists snapshot metadata.
//
// SnapshotStore is safe for concurrent readers and a single concurrent
// writer per row; all writes are keyed by the filename primary key.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore opens the metadata cache and applies its schema.
func NewSnapshotStore(db *DB) (*SnapshotStore, error) {
	migrations := []migration{
		{
			name: "snapshots",
			sql: `CREATE TABLE IF NOT EXISTS snapshots (
				filename VARCHAR PRIMARY KEY,
				filepath VARCHAR NOT NULL,
				year INTEGER NOT NULL,
				month INTEGER NOT NULL,
				day INTEGER NOT NULL,
				hour INTEGER NOT NULL,
				minute INTEGER NOT NULL,
				second INTEGER NOT NULL,
				captured_at VARCHAR NOT NULL,
				short_avg DOUBLE,
				long_avg DOUBLE,
				trigger_ratio DOUBLE,
				peak_amplitude DOUBLE,
				metadata_raw VARCHAR,
				created_at BIGINT NOT NULL,
				file_size BIGINT NOT NULL,
				event_id VARCHAR
			)`,
		},
		{
			name: "idx_snapshots_date",
			sql:  `CREATE INDEX IF NOT EXISTS idx_snapshots_date ON snapshots(year, month, day)`,
		},
		{
			name: "idx_snapshots_peak",
			sql:  `CREATE INDEX IF NOT EXISTS idx_snapshots_peak ON snapshots(peak_amplitude)`,
		},
		{
			name: "idx_snapshots_captured",
			sql:  `CREATE INDEX IF NOT EXISTS idx_snapshots_captured ON snapshots(captured_at)`,
		},
	}
	if err := db.migrate(migrations); err != nil {
		return nil, err
	}

	return &SnapshotStore{db: db}, nil
}

// IsFresh reports whether a row exists for filename and its recorded size
// matches currentSize. This is the sole staleness oracle: any mismatch,
// including a missing row, means the file must be re-extracted.
func (s *SnapshotStore) IsFresh(filename string, currentSize int64) (bool, error) {
	var size int64
	err := s.db.db.QueryRow(`SELECT file_size FROM snapshots WHERE filename = ?`, filename).Scan(&size)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("freshness check %s: %w", filename, err)
	}
	return size == currentSize, nil
}

// Upsert replaces the row for rec.Filename atomically. Re-ingestion of the
// same filename never creates a duplicate.
//
// DuckDB's ART constraint checking rejects a delete-then-insert of the
// same primary key within one transaction, so the replacement has to be
// a single INSERT OR REPLACE statement.
func (s *SnapshotStore) Upsert(rec *Snapshot) error {
	captured := timeutil.FormatStored(rec.CapturedAt)

	_, err := s.db.db.Exec(`
		INSERT OR REPLACE INTO snapshots
			(filename, filepath, year, month, day, hour, minute, second,
			 captured_at, short_avg, long_avg, trigger_ratio, peak_amplitude,
			 metadata_raw, created_at, file_size, event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Filename, rec.FilePath, rec.Year, rec.Month, rec.Day,
		rec.Hour, rec.Minute, rec.Second, captured,
		rec.Signal.ShortAvg, rec.Signal.LongAvg, rec.Signal.Ratio,
		rec.Signal.PeakAmplitude, rec.RawMetadata,
		rec.CreatedAt, rec.FileSize, rec.EventID)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", rec.Filename, err)
	}
	return nil
}

// Get returns the row for filename. An absent row wraps
// errors.ErrSnapshotNotFound.
func (s *SnapshotStore) Get(filename string) (*Snapshot, error) {
	rows, err := s.db.db.Query(snapshotSelect+` WHERE filename = ?`, filename)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", filename, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get snapshot %s: %w", filename, err)
		}
		return nil, fmt.Errorf("%s: %w", filename, errors.ErrSnapshotNotFound)
	}
	return scanSnapshot(rows)
}

// LatestCachedDate returns the newest (year, month, day) present in the
// cache, or nil when the cache is empty. Incremental scans need not
// descend into shards before this date.
func (s *SnapshotStore) LatestCachedDate() (*Date, error) {
	var d Date
	err := s.db.db.QueryRow(`
		SELECT year, month, day FROM snapshots
		ORDER BY year DESC, month DESC, day DESC
		LIMIT 1
	`).Scan(&d.Year, &d.Month, &d.Day)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest cached date: %w", err)
	}
	return &d, nil
}

// ListFiltered returns snapshots ordered by captured_at, newest first.
// When minPeak is non-nil only rows with peak_amplitude >= *minPeak are
// returned (rows without a peak amplitude never satisfy the filter).
func (s *SnapshotStore) ListFiltered(minPeak *float64) ([]Snapshot, error) {
	query := snapshotSelect
	var args []interface{}

	if minPeak != nil {
		query += ` WHERE peak_amplitude >= ?`
		args = append(args, *minPeak)
	}
	query += ` ORDER BY captured_at DESC`

	rows, err := s.db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *rec)
	}
	return snaps, rows.Err()
}

// DistinctDates returns the dates that have snapshots satisfying the
// filter, newest first.
func (s *SnapshotStore) DistinctDates(minPeak *float64) ([]Date, error) {
	query := `SELECT DISTINCT year, month, day FROM snapshots`
	var args []interface{}

	if minPeak != nil {
		query += ` WHERE peak_amplitude >= ?`
		args = append(args, *minPeak)
	}
	query += ` ORDER BY year DESC, month DESC, day DESC`

	rows, err := s.db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct dates: %w", err)
	}
	defer rows.Close()

	var dates []Date
	for rows.Next() {
		var d Date
		if err := rows.Scan(&d.Year, &d.Month, &d.Day); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// SetCorrelatedEvent records (or clears, with a nil eventID) the weak
// event reference for a snapshot. Idempotent; a missing filename is a
// no-op rather than an error so a stale batch pass cannot fail.
func (s *SnapshotStore) SetCorrelatedEvent(filename string, eventID *string) error {
	_, err := s.db.db.Exec(`UPDATE snapshots SET event_id = ? WHERE filename = ?`, eventID, filename)
	if err != nil {
		return fmt.Errorf("set correlated event %s: %w", filename, err)
	}
	return nil
}

// Delete removes the cache row for filename. Deleting an absent row is
// not an error.
func (s *SnapshotStore) Delete(filename string) error {
	_, err := s.db.db.Exec(`DELETE FROM snapshots WHERE filename = ?`, filename)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", filename, err)
	}
	return nil
}

// Count returns the number of cached snapshots.
func (s *SnapshotStore) Count() (int, error) {
	var n int
	if err := s.db.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// =============================================================================
// Row Scanning
// =============================================================================

const snapshotSelect = `
	SELECT filename, filepath, year, month, day, hour, minute, second,
	       captured_at, short_avg, long_avg, trigger_ratio, peak_amplitude,
	       metadata_raw, created_at, file_size, event_id
	FROM snapshots`

func scanSnapshot(rows *sql.Rows) (*Snapshot, error) {
	var rec Snapshot
	var captured string
	var shortAvg, longAvg, ratio, peak sql.NullFloat64
	var raw, eventID sql.NullString

	err := rows.Scan(&rec.Filename, &rec.FilePath,
		&rec.Year, &rec.Month, &rec.Day, &rec.Hour, &rec.Minute, &rec.Second,
		&captured, &shortAvg, &longAvg, &ratio, &peak,
		&raw, &rec.CreatedAt, &rec.FileSize, &eventID)
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	if rec.CapturedAt, err = timeutil.ParseStored(captured); err != nil {
		return nil, err
	}
	if shortAvg.Valid {
		rec.Signal.ShortAvg = &shortAvg.Float64
	}
	if longAvg.Valid {
		rec.Signal.LongAvg = &longAvg.Float64
	}
	if ratio.Valid {
		rec.Signal.Ratio = &ratio.Float64
	}
	if peak.Valid {
		rec.Signal.PeakAmplitude = &peak.Float64
	}
	if raw.Valid {
		rec.RawMetadata = &raw.String
	}
	if eventID.Valid {
		rec.EventID = &eventID.String
	}

	return &rec, nil
}
