// Package metrics defines the Prometheus metric collectors used across the
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexWritesTotal     prometheus.Counter
	IndexTerms           prometheus.Gauge
	IndexLocations       prometheus.Gauge
	SourcesIndexedTotal  *prometheus.CounterVec
	PagesCrawledTotal    *prometheus.CounterVec
	PoolPendingTasks     prometheus.Gauge
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total evaluated queries by mode (exact, partial).",
			},
			[]string{"mode"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Query evaluation latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of result entries per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_hits_total",
				Help: "Queries answered from the result cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_misses_total",
				Help: "Queries evaluated against the index.",
			},
		),
		IndexWritesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_writes_total",
				Help: "Write operations (add or merge) applied to the shared index.",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Distinct terms in the shared index.",
			},
		),
		IndexLocations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_locations",
				Help: "Distinct locations in the shared index.",
			},
		),
		SourcesIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sources_indexed_total",
				Help: "Text sources processed by status (ok, failed).",
			},
			[]string{"status"},
		),
		PagesCrawledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pages_crawled_total",
				Help: "Crawled pages by status (indexed, failed).",
			},
			[]string{"status"},
		),
		PoolPendingTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_pool_pending_tasks",
				Help: "Queued plus in-flight tasks in the worker pool.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexWritesTotal,
		m.IndexTerms,
		m.IndexLocations,
		m.SourcesIndexedTotal,
		m.PagesCrawledTotal,
		m.PoolPendingTasks,
	)

	return m
}

// ObserveWrite records a write to the shared index and its resulting size.
func (m *Metrics) ObserveWrite(terms, locations int) {
	m.IndexWritesTotal.Inc()
	m.IndexTerms.Set(float64(terms))
	m.IndexLocations.Set(float64(locations))
}

// ObserveSearch records whether a query was served from the result cache.
func (m *Metrics) ObserveSearch(cached bool) {
	if cached {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// ObserveQuery records one query evaluated by a query engine.
func (m *Metrics) ObserveQuery(mode string, results int, took time.Duration) {
	m.SearchQueriesTotal.WithLabelValues(mode).Inc()
	m.SearchLatency.WithLabelValues(mode).Observe(took.Seconds())
	m.SearchResultsCount.Observe(float64(results))
}

// ObserveSource records the outcome of indexing one text source.
func (m *Metrics) ObserveSource(status string) {
	m.SourcesIndexedTotal.WithLabelValues(status).Inc()
}

// ObservePage records the outcome of one crawl task.
func (m *Metrics) ObservePage(status string) {
	m.PagesCrawledTotal.WithLabelValues(status).Inc()
}

// ObservePending records the worker pool's outstanding task count.
func (m *Metrics) ObservePending(n int) {
	m.PoolPendingTasks.Set(float64(n))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
