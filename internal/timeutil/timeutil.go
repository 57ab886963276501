// Package timeutil centralizes timestamp handling for shakewatch.
//
// Two civil conventions coexist in this system: snapshot capture times are
// UTC (derived from the filename grammar), while catalog event origin times
// are JST (+09:00, the convention of the upstream authority). Comparing the
// numeric wall-clock fields of the two directly produces a silent 9-hour
// shift, so every timestamp comparison in the project goes through this
// package: both sides are normalized to absolute instants first.
//
// No other package may compare timestamps field by field.
package timeutil

import (
	"fmt"
	"time"
)

// JST is the fixed +09:00 offset used by the event authority.
// The authority's civil zone has no DST, so a fixed offset is exact.
var JST = time.FixedZone("JST", 9*60*60)

// Window is a closed time interval [Start, End] around an event origin.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowAround builds the correlation window [occurred-before, occurred+after].
func WindowAround(occurred time.Time, before, after time.Duration) Window {
	return Window{
		Start: occurred.Add(-before),
		End:   occurred.Add(after),
	}
}

// Contains reports whether the instant t falls inside the window.
// Comparison is by absolute instant, never by wall-clock fields.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// AbsDelta returns |a - b| as an absolute-instant difference.
func AbsDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// WithinWindow reports whether t is within the symmetric window
// [occurred-window, occurred+window].
func WithinWindow(t, occurred time.Time, window time.Duration) bool {
	return AbsDelta(t, occurred) <= window
}

// FormatStored renders a timestamp for durable storage. The original
// location (and therefore the civil convention of the producing source)
// is preserved in the offset.
func FormatStored(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ParseStored parses a timestamp previously written by FormatStored.
// The offset recorded in the string is retained, so round-tripped values
// compare correctly against instants from the other convention.
func ParseStored(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// NowUTC returns the current instant in UTC. Audit fields (created_at,
// updated_at) always use UTC regardless of the entity's own convention.
func NowUTC() time.Time {
	return time.Now().UTC()
}
