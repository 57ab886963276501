// Package codec parses the snapshot filename grammar.
//
// Snapshot files are named PREFIX-YYYY-MM-DD-HHMMSS.png (for example
// SHAKE-2025-08-12-104039.png). The six numeric fields are the capture
// time as a UTC wall clock. This package is the single source of truth
// for "what time does this snapshot represent"; every other component
// uses Parse rather than re-deriving a timestamp.
//
// Parse is pure and has no side effects. Any deviation from the grammar
// yields ok=false, never a panic or an error.
package codec

import (
	"regexp"
	"strconv"
	"time"
)

// pattern matches PREFIX-YYYY-MM-DD-HHMMSS.png with a minimal prefix.
// The prefix excludes path separators so a relative path never parses as
// a bare filename.
var pattern = regexp.MustCompile(`^([^/\\]+?)-(\d{4})-(\d{2})-(\d{2})-(\d{2})(\d{2})(\d{2})\.png$`)

// Parsed holds the decomposed filename fields and the derived UTC instant.
type Parsed struct {
	Filename string
	Prefix   string
	Year     int
	Month    int
	Day      int
	Hour     int
	Minute   int
	Second   int

	// CapturedAt is the capture instant. Always UTC; the grammar carries
	// no offset and no DST rules apply.
	CapturedAt time.Time
}

// Parse decomposes a snapshot filename. It returns ok=false for any input
// that does not match the grammar, including well-formed digit groups that
// are not a real calendar date (month 13, hour 25, and so on).
func Parse(filename string) (*Parsed, bool) {
	m := pattern.FindStringSubmatch(filename)
	if m == nil {
		return nil, false
	}

	// Digit counts are guaranteed by the pattern; Atoi cannot fail here.
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	hour, _ := strconv.Atoi(m[5])
	minute, _ := strconv.Atoi(m[6])
	second, _ := strconv.Atoi(m[7])

	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)

	// time.Date normalizes out-of-range fields (month 13 becomes January of
	// the next year). A normalized result means the fields were not a real
	// date, so the filename does not satisfy the grammar.
	if ts.Year() != year || ts.Month() != time.Month(month) || ts.Day() != day ||
		ts.Hour() != hour || ts.Minute() != minute || ts.Second() != second {
		return nil, false
	}

	return &Parsed{
		Filename:   filename,
		Prefix:     m[1],
		Year:       year,
		Month:      month,
		Day:        day,
		Hour:       hour,
		Minute:     minute,
		Second:     second,
		CapturedAt: ts,
	}, true
}
