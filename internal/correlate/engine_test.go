package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/xtxerr/shakewatch/internal/store"
	"github.com/xtxerr/shakewatch/internal/timeutil"
)

func testStores(t *testing.T) (*store.EventStore, *store.SnapshotStore) {
	t.Helper()

	eventDB, err := store.Open(store.DefaultConfig())
	if err != nil {
		t.Fatalf("open event db: %v", err)
	}
	t.Cleanup(func() { eventDB.Close() })
	events, err := store.NewEventStore(eventDB)
	if err != nil {
		t.Fatalf("event store: %v", err)
	}

	snapDB, err := store.Open(store.DefaultConfig())
	if err != nil {
		t.Fatalf("open snapshot db: %v", err)
	}
	t.Cleanup(func() { snapDB.Close() })
	snaps, err := store.NewSnapshotStore(snapDB)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}

	return events, snaps
}

func putEvent(t *testing.T, events *store.EventStore, id string, occurred time.Time) {
	t.Helper()
	now := timeutil.NowUTC()
	_, err := events.Upsert(&store.Event{
		EventID:       id,
		OccurredAt:    occurred,
		Latitude:      35.6,
		Longitude:     139.7,
		Magnitude:     4.2,
		DepthKm:       30,
		EpicenterName: "Tokyo Bay",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("upsert event %s: %v", id, err)
	}
}

func putSnapshot(t *testing.T, snaps *store.SnapshotStore, name string, captured time.Time, eventID *string) {
	t.Helper()
	c := captured.UTC()
	err := snaps.Upsert(&store.Snapshot{
		Filename:   name,
		FilePath:   "2025/12/13/" + name,
		Year:       c.Year(),
		Month:      int(c.Month()),
		Day:        c.Day(),
		Hour:       c.Hour(),
		Minute:     c.Minute(),
		Second:     c.Second(),
		CapturedAt: c,
		CreatedAt:  c.Unix(),
		FileSize:   1024,
		EventID:    eventID,
	})
	if err != nil {
		t.Fatalf("upsert snapshot %s: %v", name, err)
	}
}

func TestCorrelate_WindowCoverage(t *testing.T) {
	events, snaps := testStores(t)
	engine := New(events, snaps)

	occurred := time.Date(2025, 12, 13, 4, 0, 0, 0, time.UTC)
	putEvent(t, events, "ev-1", occurred)

	before, after := 30*time.Second, 240*time.Second

	ev, err := engine.Correlate(occurred.Add(2*time.Minute), before, after)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if ev == nil || ev.EventID != "ev-1" {
		t.Fatalf("correlated = %v, want ev-1", ev)
	}

	ev, err = engine.Correlate(occurred.Add(10*time.Minute), before, after)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if ev != nil {
		t.Fatalf("correlated = %v, want no match", ev)
	}
}

func TestCorrelate_AcrossTimezones(t *testing.T) {
	events, snaps := testStores(t)
	engine := New(events, snaps)

	// 13:05 JST and 04:05 UTC are the same instant.
	putEvent(t, events, "ev-jst", time.Date(2025, 12, 13, 13, 5, 0, 0, timeutil.JST))

	ev, err := engine.Correlate(time.Date(2025, 12, 13, 4, 6, 0, 0, time.UTC),
		30*time.Second, 240*time.Second)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if ev == nil || ev.EventID != "ev-jst" {
		t.Fatalf("correlated = %v, want ev-jst", ev)
	}
}

func TestRecomputeAll_LinksAndIsIdempotent(t *testing.T) {
	events, snaps := testStores(t)
	engine := New(events, snaps)

	occurred := time.Date(2025, 12, 13, 4, 0, 0, 0, time.UTC)
	putEvent(t, events, "ev-1", occurred)
	putSnapshot(t, snaps, "RS1D-2025-12-13-040100.png", occurred.Add(time.Minute), nil)
	putSnapshot(t, snaps, "RS1D-2025-12-13-080000.png", occurred.Add(4*time.Hour), nil)

	res, err := engine.RecomputeAll(context.Background(), 30*time.Second, 240*time.Second)
	if err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	if res.Snapshots != 2 || res.Updated != 1 {
		t.Fatalf("result = %+v, want 2 snapshots, 1 updated", res)
	}

	rec, err := snaps.Get("RS1D-2025-12-13-040100.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.EventID == nil || *rec.EventID != "ev-1" {
		t.Fatalf("EventID = %v, want ev-1", rec.EventID)
	}

	far, err := snaps.Get("RS1D-2025-12-13-080000.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if far.EventID != nil {
		t.Fatalf("EventID = %v, want nil for uncovered snapshot", *far.EventID)
	}

	res, err = engine.RecomputeAll(context.Background(), 30*time.Second, 240*time.Second)
	if err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	if res.Updated != 0 {
		t.Fatalf("second run updated = %d, want 0", res.Updated)
	}
}

func TestRecomputeAll_ClearsStaleLink(t *testing.T) {
	events, snaps := testStores(t)
	engine := New(events, snaps)

	gone := "ev-gone"
	putSnapshot(t, snaps, "RS1D-2025-12-13-040100.png",
		time.Date(2025, 12, 13, 4, 1, 0, 0, time.UTC), &gone)

	res, err := engine.RecomputeAll(context.Background(), 30*time.Second, 240*time.Second)
	if err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("updated = %d, want 1 cleared link", res.Updated)
	}

	rec, err := snaps.Get("RS1D-2025-12-13-040100.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.EventID != nil {
		t.Fatalf("EventID = %v, want nil", *rec.EventID)
	}
}

func TestRecomputeAll_OverlappingWindowsFirstMatch(t *testing.T) {
	events, snaps := testStores(t)
	engine := New(events, snaps)

	first := time.Date(2025, 12, 13, 4, 0, 0, 0, time.UTC)
	second := first.Add(40 * time.Second)
	putEvent(t, events, "ev-first", first)
	putEvent(t, events, "ev-second", second)

	// Ten seconds after the first quake: covered by both windows, nearer
	// to the first. The batch pass takes the first covering event in
	// newest-first catalog order, so the later quake wins anyway.
	captured := first.Add(10 * time.Second)
	putSnapshot(t, snaps, "RS1D-2025-12-13-040010.png", captured, nil)

	if _, err := engine.RecomputeAll(context.Background(), 30*time.Second, 240*time.Second); err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}

	rec, err := snaps.Get("RS1D-2025-12-13-040010.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.EventID == nil || *rec.EventID != "ev-second" {
		t.Fatalf("EventID = %v, want ev-second", rec.EventID)
	}

	// The on-demand path picks the nearest covering event instead.
	ev, err := engine.Correlate(captured, 30*time.Second, 240*time.Second)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if ev == nil || ev.EventID != "ev-first" {
		t.Fatalf("Correlate = %v, want ev-first", ev)
	}
}
