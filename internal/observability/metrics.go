package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricedash_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricedash_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	connectionAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricedash_connection_acquire_total",
			Help: "Warehouse connection attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	queryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricedash_query_attempts_total",
			Help: "Warehouse query attempts by outcome.",
		},
		[]string{"outcome"},
	)
	queryExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricedash_query_exhausted_total",
			Help: "Queries that failed on every retry attempt and degraded to an empty dataset.",
		},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricedash_query_duration_seconds",
			Help:    "Latency of successful warehouse queries, including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricedash_cache_lookups_total",
			Help: "Table cache lookups by table and outcome (hit, miss).",
		},
		[]string{"table", "outcome"},
	)
	cacheFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricedash_cache_fetches_total",
			Help: "Table cache fetches by table and status (ok, failed).",
		},
		[]string{"table", "status"},
	)
	pageRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricedash_page_renders_total",
			Help: "Page renders by page and outcome (rendered, empty, schema_mismatch).",
		},
		[]string{"page", "outcome"},
	)
	archiveSnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricedash_archive_snapshots_total",
			Help: "Dataset snapshots written to the object store by status.",
		},
		[]string{"status"},
	)
	archivePrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricedash_archive_pruned_total",
			Help: "Snapshot objects deleted by retention.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		connectionAcquireTotal,
		queryAttemptsTotal,
		queryExhaustedTotal,
		queryDurationSeconds,
		cacheLookupsTotal,
		cacheFetchesTotal,
		pageRendersTotal,
		archiveSnapshotsTotal,
		archivePrunedTotal,
	)
}

func ObserveConnectionAcquire(strategy, outcome string) {
	connectionAcquireTotal.WithLabelValues(strategy, outcome).Inc()
}

func ObserveQueryAttempt(success bool) {
	if success {
		queryAttemptsTotal.WithLabelValues("ok").Inc()
		return
	}
	queryAttemptsTotal.WithLabelValues("failed").Inc()
}

func ObserveQuerySuccess(elapsed time.Duration) {
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementQueryExhausted() {
	queryExhaustedTotal.Inc()
}

func ObserveCacheLookup(table string, hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues(table, "hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues(table, "miss").Inc()
}

func ObserveCacheFetch(table string, failed bool) {
	if failed {
		cacheFetchesTotal.WithLabelValues(table, "failed").Inc()
		return
	}
	cacheFetchesTotal.WithLabelValues(table, "ok").Inc()
}

func ObservePageRender(page, outcome string) {
	pageRendersTotal.WithLabelValues(page, outcome).Inc()
}

func ObserveArchiveSnapshot(err error, pruned int) {
	if err != nil {
		archiveSnapshotsTotal.WithLabelValues("failed").Inc()
		return
	}
	archiveSnapshotsTotal.WithLabelValues("ok").Inc()
	if pruned > 0 {
		archivePrunedTotal.Add(float64(pruned))
	}
}
