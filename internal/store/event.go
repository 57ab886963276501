// Package store provides database operations for the shakewatch application.
//
// This file handles the earthquake event catalog: upsert-by-event-id,
// ordered listing, and time-window lookup.
package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/xtxerr/shakewatch/internal/timeutil"
)

// =============================================================================
// Event Types
// =============================================================================

// Event is a real-world earthquake record from the upstream authority.
//
// OccurredAt carries the authority's civil convention (+09:00); it is
// stored with its offset and compared only as an absolute instant.
// CreatedAt and UpdatedAt are audit fields in UTC.
type Event struct {
	EventID       string
	OccurredAt    time.Time
	Latitude      float64
	Longitude     float64
	Magnitude     float64
	DepthKm       int
	EpicenterName string
	MaxIntensity  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UpsertResult distinguishes insert from update. A duplicate event id is
// not an error; it is this return value.
type UpsertResult int

const (
	// Inserted means the event id was new and a row was created.
	Inserted UpsertResult = iota

	// Updated means the event id existed and its mutable fields were
	// overwritten (the authority revises location and magnitude).
	Updated
)

// String returns a human-readable name for the result.
func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("UpsertResult(%d)", int(r))
	}
}

// =============================================================================
// EventStore
// =============================================================================

// EventStore persists the earthquake catalog.
//
// EventStore is safe for concurrent use. Rows are never deleted by this
// system; the catalog only grows or gets revised in place.
type EventStore struct {
	db *DB
}

// eventListLimit bounds how many catalog rows a window lookup loads.
// The authority feed only retains recent events, so this is generous.
const eventListLimit = 1000

// NewEventStore opens the event catalog and applies its schema.
func NewEventStore(db *DB) (*EventStore, error) {
	migrations := []migration{
		{
			name: "events",
			sql: `CREATE TABLE IF NOT EXISTS events (
				event_id VARCHAR PRIMARY KEY,
				occurred_at VARCHAR NOT NULL,
				latitude DOUBLE NOT NULL,
				longitude DOUBLE NOT NULL,
				magnitude DOUBLE NOT NULL,
				depth_km INTEGER NOT NULL,
				epicenter VARCHAR NOT NULL,
				max_intensity VARCHAR,
				created_at VARCHAR NOT NULL,
				updated_at VARCHAR NOT NULL
			)`,
		},
	}
	// No secondary index on occurred_at: DuckDB's ART constraint checking
	// makes an UPDATE of an indexed column re-insert the primary key and
	// fail, and the window lookups load rows and compare in Go anyway.
	if err := db.migrate(migrations); err != nil {
		return nil, err
	}

	return &EventStore{db: db}, nil
}

// Upsert inserts or updates an event keyed on EventID.
//
// On conflict all mutable fields are overwritten and updated_at is bumped;
// created_at is preserved. The insert/update distinction is the return
// value, never an error.
func (s *EventStore) Upsert(ev *Event) (UpsertResult, error) {
	now := timeutil.FormatStored(timeutil.NowUTC())
	occurred := timeutil.FormatStored(ev.OccurredAt)

	result := Inserted

	err := s.db.Transaction(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(`SELECT COUNT(*) FROM events WHERE event_id = ?`, ev.EventID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check event: %w", err)
		}

		if exists > 0 {
			result = Updated
			_, err = tx.Exec(`
				UPDATE events SET
					occurred_at = ?,
					latitude = ?,
					longitude = ?,
					magnitude = ?,
					depth_km = ?,
					epicenter = ?,
					max_intensity = ?,
					updated_at = ?
				WHERE event_id = ?
			`, occurred, ev.Latitude, ev.Longitude, ev.Magnitude, ev.DepthKm,
				ev.EpicenterName, ev.MaxIntensity, now, ev.EventID)
			if err != nil {
				return fmt.Errorf("update event: %w", err)
			}
			return nil
		}

		_, err = tx.Exec(`
			INSERT INTO events
				(event_id, occurred_at, latitude, longitude, magnitude,
				 depth_km, epicenter, max_intensity, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ev.EventID, occurred, ev.Latitude, ev.Longitude, ev.Magnitude,
			ev.DepthKm, ev.EpicenterName, ev.MaxIntensity, now, now)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	return result, nil
}

// ListAll returns events ordered by occurred_at, newest first.
//
// Stored timestamps keep their source offset, so VARCHAR collation can
// disagree with chronological order across offsets. Ordering is done on
// the parsed instants; the SQL ORDER BY only makes the LIMIT cut
// deterministic.
func (s *EventStore) ListAll(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = eventListLimit
	}

	rows, err := s.db.db.Query(`
		SELECT event_id, occurred_at, latitude, longitude, magnitude,
		       depth_km, epicenter, max_intensity, created_at, updated_at
		FROM events
		ORDER BY occurred_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.After(events[j].OccurredAt)
	})
	return events, nil
}

// FindCovering returns the event whose window [occurred-before, occurred+after]
// contains the instant, or nil when none does.
//
// When windows overlap (clustered earthquakes), the event with the smallest
// |instant - occurred| wins. Nearest-match is a correctness requirement for
// single-answer lookups, not an optimization.
func (s *EventStore) FindCovering(instant time.Time, before, after time.Duration) (*Event, error) {
	events, err := s.ListAll(eventListLimit)
	if err != nil {
		return nil, err
	}

	var best *Event
	var bestDelta time.Duration

	for i := range events {
		ev := &events[i]
		w := timeutil.WindowAround(ev.OccurredAt, before, after)
		if !w.Contains(instant) {
			continue
		}
		delta := timeutil.AbsDelta(instant, ev.OccurredAt)
		if best == nil || delta < bestDelta {
			best = ev
			bestDelta = delta
		}
	}

	return best, nil
}

// Count returns the number of events in the catalog.
func (s *EventStore) Count() (int, error) {
	var n int
	if err := s.db.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// scanEvent reads one event row, parsing stored timestamps back into
// offset-aware instants.
func scanEvent(rows *sql.Rows) (*Event, error) {
	var ev Event
	var occurred, created, updated string
	var maxIntensity sql.NullString

	err := rows.Scan(&ev.EventID, &occurred, &ev.Latitude, &ev.Longitude,
		&ev.Magnitude, &ev.DepthKm, &ev.EpicenterName, &maxIntensity,
		&created, &updated)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	if ev.OccurredAt, err = timeutil.ParseStored(occurred); err != nil {
		return nil, err
	}
	if ev.CreatedAt, err = timeutil.ParseStored(created); err != nil {
		return nil, err
	}
	if ev.UpdatedAt, err = timeutil.ParseStored(updated); err != nil {
		return nil, err
	}
	if maxIntensity.Valid {
		ev.MaxIntensity = &maxIntensity.String
	}

	return &ev, nil
}
