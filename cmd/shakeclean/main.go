// shakeclean applies the snapshot retention policy from the command line.
//
// It selects snapshots whose peak amplitude crossed the noise threshold
// without any earthquake nearby and deletes them, or with -dry-run only
// reports what it would delete. It shares the daemon's configuration file
// and databases, so it can run from cron beside a live shakewatchd.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/xtxerr/shakewatch/internal/loader"
	"github.com/xtxerr/shakewatch/internal/logging"
	"github.com/xtxerr/shakewatch/internal/retention"
	"github.com/xtxerr/shakewatch/internal/store"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dryRun := flag.Bool("dry-run", false, "report candidates without deleting")
	minPeak := flag.Float64("min-peak", 0, "peak amplitude threshold (overrides config)")
	minMag := flag.Float64("min-magnitude", 0, "protecting event magnitude (overrides config)")
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
	if err := loader.Validate(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	level := cfg.Logging.Level
	if *debug {
		level = "debug"
	}
	logging.Init(logging.ParseLevel(level), cfg.Logging.JSON)

	policy := retention.Policy{
		MinPeakAmplitude: cfg.Retention.MinPeakAmplitude,
		Window:           cfg.RetentionWindow(),
		MinMagnitude:     cfg.Retention.MinMagnitude,
	}
	if *minPeak > 0 {
		policy.MinPeakAmplitude = *minPeak
	}
	if *minMag > 0 {
		policy.MinMagnitude = *minMag
	}

	snaps, snapDB := openSnapshotStore(cfg.Data.CachePath)
	defer snapDB.Close()
	events, evDB := openEventStore(cfg.Data.EventPath)
	defer evDB.Close()

	engine := retention.New(cfg.Data.SnapshotRoot, snaps, events)

	condemned, err := engine.SelectForDeletion(policy)
	if err != nil {
		log.Fatalf("Select candidates: %v", err)
	}
	if len(condemned) == 0 {
		fmt.Println("no snapshots match the retention policy")
		return
	}

	res, err := engine.Delete(context.Background(), condemned, *dryRun)
	if err != nil {
		log.Fatalf("Delete: %v", err)
	}

	if res.DryRun {
		fmt.Printf("dry run: %d candidates, %d empty shards would be compacted\n",
			res.Candidates, res.Compacted)
		return
	}
	fmt.Printf("deleted %d snapshots (%d files already missing, %d failed), compacted %d shards\n",
		res.Deleted, res.Missing, res.Failed, res.Compacted)
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func openSnapshotStore(path string) (*store.SnapshotStore, *store.DB) {
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

func openEventStore(path string) (*store.EventStore, *store.DB) {
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
