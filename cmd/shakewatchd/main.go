// shakewatchd is the seismograph snapshot monitor daemon.
//
// It watches a date-sharded snapshot directory, keeps a metadata cache of
// every snapshot's embedded signal readings, polls the JMA earthquake
// catalog, and correlates snapshots with real quakes.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/xtxerr/shakewatch/internal/correlate"
	"github.com/xtxerr/shakewatch/internal/feed"
	"github.com/xtxerr/shakewatch/internal/loader"
	"github.com/xtxerr/shakewatch/internal/logging"
	"github.com/xtxerr/shakewatch/internal/metrics"
	"github.com/xtxerr/shakewatch/internal/monitor"
	"github.com/xtxerr/shakewatch/internal/snapshot"
	"github.com/xtxerr/shakewatch/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	root := flag.String("root", "", "snapshot root directory (overrides config)")
	cacheDB := flag.String("cache-db", "", "metadata cache database path (overrides config)")
	eventDB := flag.String("event-db", "", "event catalog database path (overrides config)")
	metricsListen := flag.String("metrics-listen", "", "Prometheus listen address (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = loader.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	if *root != "" {
		cfg.Data.SnapshotRoot = *root
	}
	if *cacheDB != "" {
		cfg.Data.CachePath = *cacheDB
	}
	if *eventDB != "" {
		cfg.Data.EventPath = *eventDB
	}
	if *metricsListen != "" {
		cfg.Metrics.Listen = *metricsListen
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}

	if err := loader.Validate(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	logging.Info("shakewatchd starting", "version", Version)

	// =========================================================================
	// Open Stores (DuckDB)
	// =========================================================================

	snaps, snapDB := mustOpenSnapshotStore(cfg.Data.CachePath)
	defer snapDB.Close()

	events, evDB := mustOpenEventStore(cfg.Data.EventPath)
	defer evDB.Close()

	if err := os.MkdirAll(cfg.Data.SnapshotRoot, 0o755); err != nil {
		log.Fatalf("Create snapshot root: %v", err)
	}

	// =========================================================================
	// Assemble Workers
	// =========================================================================

	feedClient := feed.New(events, feed.Config{
		ListURL:       cfg.Feed.ListURL,
		DetailBaseURL: cfg.Feed.DetailURL,
		Timeout:       cfg.FeedTimeout(),
		MinIntensity:  cfg.Feed.MinIntensity,
	})

	m := monitor.New(cfg,
		snapshot.NewScanner(cfg.Data.SnapshotRoot, snaps),
		feedClient,
		correlate.New(events, snaps),
		snaps, events)

	if cfg.Metrics.Listen != "" {
		go func() {
			logging.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := http.ListenAndServe(cfg.Metrics.Listen, metrics.Handler()); err != nil {
				logging.Error("metrics server", "error", err)
			}
		}()
	}

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Run(ctx); err != nil {
		log.Fatalf("Monitor: %v", err)
	}
}

func mustOpenSnapshotStore(path string) (*store.SnapshotStore, *store.DB) {
	mustMkdirFor(path)
	cfg := store.DefaultConfig()
	cfg.DSN = path

	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("Open metadata cache: %v", err)
	}
	snaps, err := store.NewSnapshotStore(db)
	if err != nil {
		log.Fatalf("Migrate metadata cache: %v", err)
	}
	return snaps, db
}

func mustOpenEventStore(path string) (*store.EventStore, *store.DB) {
	mustMkdirFor(path)
	cfg := store.DefaultConfig()
	cfg.DSN = path

	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("Open event catalog: %v", err)
	}
	events, err := store.NewEventStore(db)
	if err != nil {
		log.Fatalf("Migrate event catalog: %v", err)
	}
	return events, db
}

func mustMkdirFor(path string) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Create %s: %v", dir, err)
		}
	}
}
