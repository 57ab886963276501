// Package metrics exposes Prometheus instrumentation for the scan, poll,
// correlation and retention loops.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScanRuns counts scan executions by mode ("full", "incremental")
	// and outcome ("ok", "skipped", "error"). A skipped run found
	// another scan already holding the guard.
	ScanRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shakewatch",
		Name:      "scan_runs_total",
		Help:      "Snapshot scan executions by mode and outcome.",
	}, []string{"mode", "outcome"})

	// SnapshotsCached counts snapshot files extracted and written to the
	// metadata cache.
	SnapshotsCached = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shakewatch",
		Name:      "snapshots_cached_total",
		Help:      "Snapshot files extracted and cached.",
	})

	// FeedPolls counts catalog poll cycles by outcome ("ok", "error").
	FeedPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shakewatch",
		Name:      "feed_polls_total",
		Help:      "Earthquake catalog poll cycles by outcome.",
	}, []string{"outcome"})

	// FeedEvents counts catalog events written by kind
	// ("inserted", "updated").
	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shakewatch",
		Name:      "feed_events_total",
		Help:      "Earthquake events written to the catalog by kind.",
	}, []string{"kind"})

	// CorrelationUpdates counts snapshot rows whose event link changed
	// during a batch recomputation.
	CorrelationUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shakewatch",
		Name:      "correlation_updates_total",
		Help:      "Snapshot rows whose correlated event changed.",
	})

	// RetentionDeleted counts snapshots removed by the retention engine.
	RetentionDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shakewatch",
		Name:      "retention_deleted_total",
		Help:      "Snapshots deleted by the retention policy.",
	})

	// CachedSnapshots is the current size of the metadata cache.
	CachedSnapshots = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shakewatch",
		Name:      "cached_snapshots",
		Help:      "Rows currently in the snapshot metadata cache.",
	})

	// CatalogEvents is the current size of the event catalog.
	CatalogEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shakewatch",
		Name:      "catalog_events",
		Help:      "Rows currently in the earthquake event catalog.",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
