package komparu

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch outcomes recorded by RecordBatchResult.
const (
	BatchOutcomeCached  = "cached"
	BatchOutcomeSuccess = "success"
	BatchOutcomeError   = "error"
)

// MetricsCollector provides Prometheus metrics for requests, the response
// cache and batch flushes. It is safe for concurrent use, and a nil collector
// records nothing.
type MetricsCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheWrites *prometheus.CounterVec

	batchResults  *prometheus.CounterVec
	batchInFlight prometheus.Gauge
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)

	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "komparu_requests_total",
				Help: "Total number of API requests sent",
			},
			[]string{"method", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "komparu_request_duration_seconds",
				Help:    "Duration of API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "komparu_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"method"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "komparu_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"method"},
		),
		cacheWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "komparu_cache_writes_total",
				Help: "Total number of response cache writes",
			},
			[]string{"method"},
		),
		batchResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "komparu_batch_results_total",
				Help: "Results of flushed batch members by outcome",
			},
			[]string{"outcome"},
		),
		batchInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "komparu_batch_requests_in_flight",
				Help: "Number of batch requests currently in flight",
			},
		),
	}
}

// RecordRequest records a completed request.
func (m *MetricsCollector) RecordRequest(method string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}

	m.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func (m *MetricsCollector) RecordCacheHit(method string) {
	if m == nil {
		return
	}

	m.cacheHits.WithLabelValues(method).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *MetricsCollector) RecordCacheMiss(method string) {
	if m == nil {
		return
	}

	m.cacheMisses.WithLabelValues(method).Inc()
}

// RecordCacheWrite records a cache write.
func (m *MetricsCollector) RecordCacheWrite(method string) {
	if m == nil {
		return
	}

	m.cacheWrites.WithLabelValues(method).Inc()
}

// RecordBatchResult records the outcome of one batch member.
func (m *MetricsCollector) RecordBatchResult(outcome string) {
	if m == nil {
		return
	}

	m.batchResults.WithLabelValues(outcome).Inc()
}

// BatchRequestStarted increments the in-flight gauge.
func (m *MetricsCollector) BatchRequestStarted() {
	if m == nil {
		return
	}

	m.batchInFlight.Inc()
}

// BatchRequestFinished decrements the in-flight gauge.
func (m *MetricsCollector) BatchRequestFinished() {
	if m == nil {
		return
	}

	m.batchInFlight.Dec()
}
