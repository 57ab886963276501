package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/shakewatch/internal/errors"
	"github.com/xtxerr/shakewatch/internal/store"
	"github.com/xtxerr/shakewatch/internal/timeutil"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in      string
		lat     float64
		lon     float64
		depthKm int
		wantErr bool
	}{
		{in: "+27.7+128.8-20000/", lat: 27.7, lon: 128.8, depthKm: 20},
		{in: "+35.36+140.30-60000/", lat: 35.36, lon: 140.30, depthKm: 60},
		{in: "-15.2+167.5-10000/", lat: -15.2, lon: 167.5, depthKm: 10},
		{in: "+27.7+128.8+0/", lat: 27.7, lon: 128.8, depthKm: 0},
		{in: "+27.7+128.8-20000", lat: 27.7, lon: 128.8, depthKm: 20}, // no trailing slash
		{in: "", wantErr: true},
		{in: "27.7+128.8-20000/", wantErr: true}, // missing leading sign
		{in: "+27.7/", wantErr: true},
		{in: "garbage", wantErr: true},
	}

	for _, tt := range tests {
		lat, lon, depth, err := ParseCoordinate(tt.in)
		if tt.wantErr {
			if !errors.Is(err, errors.ErrInvalidCoordinate) {
				t.Errorf("ParseCoordinate(%q) err = %v, want ErrInvalidCoordinate", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCoordinate(%q): %v", tt.in, err)
			continue
		}
		if lat != tt.lat || lon != tt.lon || depth != tt.depthKm {
			t.Errorf("ParseCoordinate(%q) = (%v, %v, %v), want (%v, %v, %v)",
				tt.in, lat, lon, depth, tt.lat, tt.lon, tt.depthKm)
		}
	}
}

func TestParseIntensity(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"1", 1}, {"2", 2}, {"3", 3}, {"4", 4},
		{"5-", 50}, {"5+", 55}, {"6-", 60}, {"6+", 65},
		{"7", 7},
		{"", 0}, {"0", 0}, {"8", 0}, {"weak", 0},
	}
	for _, tt := range tests {
		if got := ParseIntensity(tt.code); got != tt.want {
			t.Errorf("ParseIntensity(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func testEventStore(t *testing.T) *store.EventStore {
	t.Helper()
	db, err := store.Open(store.DefaultConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	events, err := store.NewEventStore(db)
	if err != nil {
		t.Fatalf("event store: %v", err)
	}
	return events
}

const (
	testList = `[
		{"eid": "20251213130000", "json": "quake-1.json", "maxi": "4"},
		{"eid": "20251213020000", "json": "quake-2.json", "maxi": "1"}
	]`

	testDetail = `{
		"Body": {
			"Earthquake": {
				"OriginTime": "2025-12-13T13:00:00+09:00",
				"Magnitude": "5.9",
				"Hypocenter": {
					"Area": {
						"Name": "Ibaraki-ken Oki",
						"Coordinate": "+36.3+141.0-50000/"
					}
				}
			}
		}
	}`
)

// testServer serves a catalog list at /list.json and detail documents at
// /<file>, counting detail hits.
func testServer(t *testing.T, list string, details map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var detailHits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/list.json" {
			w.Write([]byte(list))
			return
		}
		detailHits.Add(1)
		if doc, ok := details[r.URL.Path[1:]]; ok {
			w.Write([]byte(doc))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &detailHits
}

func testClient(events *store.EventStore, srv *httptest.Server) *Client {
	return New(events, Config{
		ListURL:       srv.URL + "/list.json",
		DetailBaseURL: srv.URL + "/",
		Timeout:       5 * time.Second,
		MinIntensity:  3,
	})
}

func TestCrawl_InsertsQualifyingEvents(t *testing.T) {
	events := testEventStore(t)
	srv, detailHits := testServer(t, testList, map[string]string{"quake-1.json": testDetail})
	c := testClient(events, srv)

	res, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Listed != 2 || res.Inserted != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v, want 1 inserted, 1 skipped", res)
	}
	// The intensity-1 entry must be filtered before its detail fetch.
	if detailHits.Load() != 1 {
		t.Fatalf("detail fetches = %d, want 1", detailHits.Load())
	}

	ev := res.New[0]
	if ev.EventID != "20251213130000" {
		t.Errorf("EventID = %q", ev.EventID)
	}
	if ev.Latitude != 36.3 || ev.Longitude != 141.0 || ev.DepthKm != 50 {
		t.Errorf("hypocenter = (%v, %v, %v)", ev.Latitude, ev.Longitude, ev.DepthKm)
	}
	if ev.Magnitude != 5.9 {
		t.Errorf("Magnitude = %v, want 5.9", ev.Magnitude)
	}
	if ev.EpicenterName != "Ibaraki-ken Oki" {
		t.Errorf("EpicenterName = %q", ev.EpicenterName)
	}
	if ev.MaxIntensity == nil || *ev.MaxIntensity != "4" {
		t.Errorf("MaxIntensity = %v, want 4", ev.MaxIntensity)
	}

	// The origin time keeps the catalog's +09:00 civil convention but
	// must denote the right instant.
	want := time.Date(2025, 12, 13, 13, 0, 0, 0, timeutil.JST)
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", ev.OccurredAt, want)
	}
	if _, offset := ev.OccurredAt.Zone(); offset != 9*60*60 {
		t.Errorf("offset = %d, want +09:00 preserved", offset)
	}
}

func TestCrawl_SecondPassUpdatesNotInserts(t *testing.T) {
	events := testEventStore(t)
	srv, _ := testServer(t, testList, map[string]string{"quake-1.json": testDetail})
	c := testClient(events, srv)

	if _, err := c.Crawl(context.Background()); err != nil {
		t.Fatalf("first crawl: %v", err)
	}
	res, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("second crawl: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 1 {
		t.Fatalf("result = %+v, want 0 inserted, 1 updated", res)
	}
	if n, _ := events.Count(); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
}

func TestCrawl_DetailFailureSkipsEntry(t *testing.T) {
	events := testEventStore(t)
	srv, _ := testServer(t, testList, nil) // every detail fetch 404s
	c := testClient(events, srv)

	res, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Inserted != 0 || res.Skipped != 2 {
		t.Fatalf("result = %+v, want everything skipped", res)
	}
}

func TestCrawl_ListFailureIsTransient(t *testing.T) {
	events := testEventStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := New(events, Config{
		ListURL: srv.URL + "/list.json",
		Timeout: time.Second,
	})

	_, err := c.Crawl(context.Background())
	if !errors.Is(err, errors.ErrFeedUnavailable) {
		t.Fatalf("err = %v, want ErrFeedUnavailable", err)
	}
}

func TestCrawl_MalformedDetailSkipped(t *testing.T) {
	events := testEventStore(t)
	srv, _ := testServer(t, `[{"eid": "x1", "json": "bad.json", "maxi": "4"}]`,
		map[string]string{"bad.json": `{"Body": {"Earthquake": {"OriginTime": "2025-12-13T13:00:00+09:00"}}}`})
	c := testClient(events, srv)

	res, err := c.Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Skipped != 1 || res.Inserted != 0 {
		t.Fatalf("result = %+v, want missing-coordinate entry skipped", res)
	}
}
