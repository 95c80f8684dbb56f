// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamErrors   *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Refresh metrics
	RefreshRunsTotal prometheus.Counter
	RefreshErrors    prometheus.Counter
	RefreshDuration  prometheus.Histogram

	// Pool metrics
	SupportedPools   prometheus.Gauge
	UnsupportedPools prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Websocket metrics
	WSClients    prometheus.Gauge
	WSBroadcasts prometheus.Counter

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "alloydash"
	}

	return &Metrics{
		// Upstream metrics
		UpstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of upstream requests by endpoint",
		}, []string{"endpoint"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Total number of upstream request failures by endpoint",
		}, []string{"endpoint"}),
		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_latency_seconds",
			Help:      "Upstream request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		// Cache metrics
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits by operation",
		}, []string{"operation"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses by operation",
		}, []string{"operation"}),

		// Refresh metrics
		RefreshRunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Total number of overview refresh runs",
		}),
		RefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "errors_total",
			Help:      "Total number of failed overview refresh runs",
		}),
		RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Overview refresh duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		// Pool metrics
		SupportedPools: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pools",
			Name:      "supported",
			Help:      "Number of supported pools in the last computed overview",
		}),
		UnsupportedPools: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pools",
			Name:      "unsupported",
			Help:      "Number of unsupported pools in the last computed overview",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Websocket metrics
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Number of connected websocket clients",
		}),
		WSBroadcasts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "broadcasts_total",
			Help:      "Total number of overview broadcasts sent",
		}),

		// Health metrics
		LastSuccessfulRefresh: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last successful overview refresh",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordUpstreamRequest records one upstream request and its outcome.
func RecordUpstreamRequest(endpoint string, seconds float64, err error) {
	DefaultMetrics.UpstreamRequests.WithLabelValues(endpoint).Inc()
	DefaultMetrics.UpstreamLatency.WithLabelValues(endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.UpstreamErrors.WithLabelValues(endpoint).Inc()
	}
}

// RecordCacheHit increments the cache hit counter for an operation.
func RecordCacheHit(operation string) {
	DefaultMetrics.CacheHits.WithLabelValues(operation).Inc()
}

// RecordCacheMiss increments the cache miss counter for an operation.
func RecordCacheMiss(operation string) {
	DefaultMetrics.CacheMisses.WithLabelValues(operation).Inc()
}

// RecordRefresh records one refresh run.
func RecordRefresh(durationSeconds float64, err error) {
	DefaultMetrics.RefreshRunsTotal.Inc()
	DefaultMetrics.RefreshDuration.Observe(durationSeconds)
	if err != nil {
		DefaultMetrics.RefreshErrors.Inc()
	}
}

// UpdatePoolCounts updates the supported/unsupported pool gauges.
func UpdatePoolCounts(supported, unsupported int) {
	DefaultMetrics.SupportedPools.Set(float64(supported))
	DefaultMetrics.UnsupportedPools.Set(float64(unsupported))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordBroadcast increments the broadcast counter.
func RecordBroadcast() {
	DefaultMetrics.WSBroadcasts.Inc()
}

// UpdateWSClients updates the connected client gauge.
func UpdateWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}
