// Package feed polls the JMA earthquake catalog and normalizes it into
// event records. It owns all wire-format concerns: the coordinate string
// grammar, the seismic intensity codes and the two-step list/detail fetch.
// The rest of the system only ever sees normalized events.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xtxerr/shakewatch/config"
	"github.com/xtxerr/shakewatch/internal/errors"
	"github.com/xtxerr/shakewatch/internal/logging"
	"github.com/xtxerr/shakewatch/internal/store"
	"github.com/xtxerr/shakewatch/internal/timeutil"
)

const (
	defaultListURL    = "https://www.jma.go.jp/bosai/quake/data/list.json"
	defaultDetailBase = "https://www.jma.go.jp/bosai/quake/data/"

	userAgent = "shakewatch earthquake crawler"
)

// Config holds feed client configuration. URLs are overridable for tests.
type Config struct {
	ListURL       string
	DetailBaseURL string
	Timeout       time.Duration

	// MinIntensity skips events below this seismic intensity scale value
	// before the detail fetch, keeping the poll cheap.
	MinIntensity int
}

// Client polls the catalog and upserts normalized events.
type Client struct {
	http   *resty.Client
	events *store.EventStore
	cfg    Config
	log    *slog.Logger
}

// New creates a feed client over the event store.
func New(events *store.EventStore, cfg Config) *Client {
	if cfg.ListURL == "" {
		cfg.ListURL = defaultListURL
	}
	if cfg.DetailBaseURL == "" {
		cfg.DetailBaseURL = defaultDetailBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultFeedTimeout
	}

	http := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   http,
		events: events,
		cfg:    cfg,
		log:    logging.Component("feed"),
	}
}

// =============================================================================
// Wire types
// =============================================================================

// listEntry is one row of the catalog list endpoint.
type listEntry struct {
	EventID      string `json:"eid"`
	DetailFile   string `json:"json"`
	MaxIntensity string `json:"maxi"`
}

// detail is the subset of the per-event detail document the feed needs.
type detail struct {
	Body struct {
		Earthquake struct {
			OriginTime string      `json:"OriginTime"`
			Magnitude  json.Number `json:"Magnitude"`
			Hypocenter struct {
				Area struct {
					Name       string `json:"Name"`
					Coordinate string `json:"Coordinate"`
				} `json:"Area"`
			} `json:"Hypocenter"`
		} `json:"Earthquake"`
	} `json:"Body"`
}

// =============================================================================
// Wire-format parsing
// =============================================================================

// coordinateRe matches the ISO 6709 style "+lat+lon-depth/" coordinate
// string, depth in meters (e.g. "+27.7+128.8-20000/").
var coordinateRe = regexp.MustCompile(`^([+-][\d.]+)([+-][\d.]+)([+-]\d+)`)

// ParseCoordinate splits a catalog coordinate string into latitude,
// longitude and depth in kilometers. Depth is reported as a negative
// meter offset below the surface and comes back as positive km.
func ParseCoordinate(coord string) (lat, lon float64, depthKm int, err error) {
	m := coordinateRe.FindStringSubmatch(strings.TrimSuffix(coord, "/"))
	if m == nil {
		return 0, 0, 0, fmt.Errorf("%q: %w", coord, errors.ErrInvalidCoordinate)
	}

	lat, err = strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%q: %w", coord, errors.ErrInvalidCoordinate)
	}
	lon, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%q: %w", coord, errors.ErrInvalidCoordinate)
	}
	depthM, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%q: %w", coord, errors.ErrInvalidCoordinate)
	}
	if depthM < 0 {
		depthM = -depthM
	}
	return lat, lon, depthM / 1000, nil
}

// intensityScale maps the catalog's intensity codes onto an ordered
// numeric scale. The 5/6 weak/strong codes sit between their neighbors.
var intensityScale = map[string]int{
	"1": 1, "2": 2, "3": 3, "4": 4,
	"5-": 50, "5+": 55,
	"6-": 60, "6+": 65,
	"7": 7,
}

// ParseIntensity maps an intensity code to its scale value. Unknown codes
// map to 0 and therefore never pass a minimum-intensity filter.
func ParseIntensity(code string) int {
	return intensityScale[code]
}

// qualifies reports whether an intensity code meets the minimum scale
// value. Unknown codes never qualify.
func qualifies(code string, minIntensity int) bool {
	return ParseIntensity(code) >= minIntensity
}

// =============================================================================
// Crawl
// =============================================================================

// Result reports one poll cycle.
type Result struct {
	Listed   int // entries in the catalog list
	Skipped  int // below the intensity floor or unparseable
	Inserted int // events new to the catalog
	Updated  int // known events with revised fields
	New      []store.Event
}

// Crawl fetches the catalog list, then the detail document of every entry
// at or above the intensity floor, and upserts the normalized events.
//
// A list fetch failure is transient: the error wraps ErrFeedUnavailable
// and the caller retries on its next cycle. Per-entry failures are logged
// and skipped, never aborting the batch.
func (c *Client) Crawl(ctx context.Context) (*Result, error) {
	var entries []listEntry
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&entries).
		Get(c.cfg.ListURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog list: %v: %w", err, errors.ErrFeedUnavailable)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch catalog list: status %d: %w", resp.StatusCode(), errors.ErrFeedUnavailable)
	}

	result := &Result{Listed: len(entries)}
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entry := &entries[i]

		if entry.EventID == "" || entry.DetailFile == "" || !qualifies(entry.MaxIntensity, c.cfg.MinIntensity) {
			result.Skipped++
			continue
		}

		ev, err := c.fetchEvent(ctx, entry)
		if err != nil {
			result.Skipped++
			c.log.Warn("skip catalog entry", "event_id", entry.EventID, "error", err)
			continue
		}

		outcome, err := c.events.Upsert(ev)
		if err != nil {
			result.Skipped++
			c.log.Error("upsert event", "event_id", ev.EventID, "error", err)
			continue
		}
		switch outcome {
		case store.Inserted:
			result.Inserted++
			result.New = append(result.New, *ev)
			c.log.Info("new earthquake", "event_id", ev.EventID,
				"epicenter", ev.EpicenterName, "magnitude", ev.Magnitude,
				"occurred_at", ev.OccurredAt)
		case store.Updated:
			result.Updated++
		}
	}

	c.log.Debug("poll complete", "listed", result.Listed,
		"inserted", result.Inserted, "updated", result.Updated, "skipped", result.Skipped)
	return result, nil
}

// fetchEvent pulls and normalizes one detail document.
func (c *Client) fetchEvent(ctx context.Context, entry *listEntry) (*store.Event, error) {
	var doc detail
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&doc).
		Get(c.cfg.DetailBaseURL + entry.DetailFile)
	if err != nil {
		return nil, fmt.Errorf("fetch detail: %v: %w", err, errors.ErrFeedUnavailable)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch detail: status %d: %w", resp.StatusCode(), errors.ErrFeedUnavailable)
	}

	eq := &doc.Body.Earthquake
	if eq.OriginTime == "" {
		return nil, fmt.Errorf("origin time: %w", errors.ErrMissingField)
	}
	occurred, err := time.Parse(time.RFC3339, eq.OriginTime)
	if err != nil {
		return nil, fmt.Errorf("origin time %q: %w", eq.OriginTime, errors.ErrInvalidMetadata)
	}

	if eq.Hypocenter.Area.Coordinate == "" {
		return nil, fmt.Errorf("coordinate: %w", errors.ErrMissingField)
	}
	lat, lon, depthKm, err := ParseCoordinate(eq.Hypocenter.Area.Coordinate)
	if err != nil {
		return nil, err
	}

	magnitude := 0.0
	if eq.Magnitude != "" {
		if v, err := eq.Magnitude.Float64(); err == nil {
			magnitude = v
		}
	}

	name := eq.Hypocenter.Area.Name
	if name == "" {
		name = "unknown"
	}

	var intensity *string
	if entry.MaxIntensity != "" {
		v := entry.MaxIntensity
		intensity = &v
	}

	now := timeutil.NowUTC()
	return &store.Event{
		EventID:       entry.EventID,
		OccurredAt:    occurred,
		Latitude:      lat,
		Longitude:     lon,
		Magnitude:     magnitude,
		DepthKm:       depthKm,
		EpicenterName: name,
		MaxIntensity:  intensity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
