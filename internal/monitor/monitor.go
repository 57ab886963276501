// Package monitor runs the periodic workers: the snapshot rescan loop and
// the earthquake catalog poll loop. The two loops are independent and share
// nothing but the stores; each observes cancellation between work units.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/shakewatch/internal/correlate"
	"github.com/xtxerr/shakewatch/internal/errors"
	"github.com/xtxerr/shakewatch/internal/feed"
	"github.com/xtxerr/shakewatch/internal/loader"
	"github.com/xtxerr/shakewatch/internal/logging"
	"github.com/xtxerr/shakewatch/internal/metrics"
	"github.com/xtxerr/shakewatch/internal/snapshot"
	"github.com/xtxerr/shakewatch/internal/store"
	"github.com/xtxerr/shakewatch/internal/timeutil"
)

// Monitor owns the worker loops.
type Monitor struct {
	cfg     *loader.Config
	scanner *snapshot.Scanner
	feed    *feed.Client
	engine  *correlate.Engine
	snaps   *store.SnapshotStore
	events  *store.EventStore
	log     *slog.Logger
}

// New assembles a monitor over the already-opened stores.
func New(cfg *loader.Config, scanner *snapshot.Scanner, feedClient *feed.Client,
	engine *correlate.Engine, snaps *store.SnapshotStore, events *store.EventStore) *Monitor {
	return &Monitor{
		cfg:     cfg,
		scanner: scanner,
		feed:    feedClient,
		engine:  engine,
		snaps:   snaps,
		events:  events,
		log:     logging.Component("monitor"),
	}
}

// Run executes the startup pass and then the periodic loops until the
// context is canceled. Cancellation is a clean stop, not an error.
//
// Startup does the expensive work once: relocate loose files, full scan,
// catalog poll, correlation recompute. After that the scan loop runs the
// cheap incremental scan and the feed loop repolls the catalog, each on
// its own schedule.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("starting",
		"scan_interval", m.cfg.ScanInterval(), "feed_interval", m.cfg.FeedInterval())

	m.runScan(ctx, true)
	m.runPoll(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.scanLoop(ctx) })
	g.Go(func() error { return m.feedLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	m.log.Info("stopped")
	return err
}

func (m *Monitor) scanLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ScanInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runScan(ctx, false)
		}
	}
}

func (m *Monitor) feedLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.FeedInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runPoll(ctx)
		}
	}
}

// runScan relocates loose files, then runs one scan pass.
func (m *Monitor) runScan(ctx context.Context, full bool) {
	mode := "incremental"
	if full {
		mode = "full"
	}

	if _, err := m.scanner.Organize(ctx); err != nil && ctx.Err() == nil {
		m.log.Error("organize snapshots", "error", err)
	}

	var res *snapshot.ScanResult
	var err error
	if full {
		res, err = m.scanner.ScanFull(ctx)
	} else {
		res, err = m.scanner.ScanIncremental(ctx)
	}

	switch {
	case err != nil:
		if ctx.Err() == nil {
			m.log.Error("scan", "mode", mode, "error", err)
		}
		metrics.ScanRuns.WithLabelValues(mode, "error").Inc()
	case res.AlreadyRunning:
		metrics.ScanRuns.WithLabelValues(mode, "skipped").Inc()
	default:
		metrics.ScanRuns.WithLabelValues(mode, "ok").Inc()
		metrics.SnapshotsCached.Add(float64(res.Cached))
	}

	if n, err := m.snaps.Count(); err == nil {
		metrics.CachedSnapshots.Set(float64(n))
	}
}

// runPoll polls the catalog and, when it succeeds, recomputes the stored
// correlations so new events immediately claim their snapshots.
func (m *Monitor) runPoll(ctx context.Context) {
	started := timeutil.NowUTC()
	res, err := m.feed.Crawl(ctx)
	if err != nil {
		if ctx.Err() == nil && errors.IsTransient(err) {
			m.log.Warn("catalog poll failed, retrying next cycle", "error", err)
		} else if ctx.Err() == nil {
			m.log.Error("catalog poll", "error", err)
		}
		metrics.FeedPolls.WithLabelValues("error").Inc()
		return
	}

	metrics.FeedPolls.WithLabelValues("ok").Inc()
	metrics.FeedEvents.WithLabelValues("inserted").Add(float64(res.Inserted))
	metrics.FeedEvents.WithLabelValues("updated").Add(float64(res.Updated))
	if n, err := m.events.Count(); err == nil {
		metrics.CatalogEvents.Set(float64(n))
	}

	recomputed, err := m.engine.RecomputeAll(ctx, m.cfg.WindowBefore(), m.cfg.WindowAfter())
	if err != nil {
		if ctx.Err() == nil {
			m.log.Error("recompute correlations", "error", err)
		}
		return
	}
	metrics.CorrelationUpdates.Add(float64(recomputed.Updated))

	m.log.Debug("poll cycle done", "inserted", res.Inserted,
		"relinked", recomputed.Updated, "elapsed", timeutil.NowUTC().Sub(started))
}
