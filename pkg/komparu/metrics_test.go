package komparu_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komparu/komparu-go/pkg/komparu"
)

// metricValue sums every series of a counter or gauge family.
func metricValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	total := 0.0

	for _, family := range families {
		if family.GetName() != name {
			continue
		}

		for _, metric := range family.GetMetric() {
			if counter := metric.GetCounter(); counter != nil {
				total += counter.GetValue()
			}

			if gauge := metric.GetGauge(); gauge != nil {
				total += gauge.GetValue()
			}
		}
	}

	return total
}

func TestMetricsCollector(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	collector := komparu.NewMetricsCollectorWithRegistry(registry)

	collector.RecordRequest("GET", 200, 120*time.Millisecond)
	collector.RecordRequest("GET", 200, 80*time.Millisecond)
	collector.RecordRequest("POST", 422, 10*time.Millisecond)

	expected := `
# HELP komparu_requests_total Total number of API requests sent
# TYPE komparu_requests_total counter
komparu_requests_total{method="GET",status_code="200"} 2
komparu_requests_total{method="POST",status_code="422"} 1
`

	err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "komparu_requests_total")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(registry, "komparu_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetricsCollector_Batch(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	collector := komparu.NewMetricsCollectorWithRegistry(registry)

	collector.BatchRequestStarted()
	collector.BatchRequestStarted()
	collector.BatchRequestFinished()
	collector.RecordBatchResult(komparu.BatchOutcomeCached)
	collector.RecordBatchResult(komparu.BatchOutcomeError)

	assert.InDelta(t, 1, metricValue(t, registry, "komparu_batch_requests_in_flight"), 0)
	assert.InDelta(t, 2, metricValue(t, registry, "komparu_batch_results_total"), 0)
}

func TestMetricsCollector_Nil(t *testing.T) {
	t.Parallel()

	var collector *komparu.MetricsCollector

	assert.NotPanics(t, func() {
		collector.RecordRequest("GET", 200, time.Second)
		collector.RecordCacheHit("GET")
		collector.RecordCacheMiss("GET")
		collector.RecordCacheWrite("GET")
		collector.RecordBatchResult(komparu.BatchOutcomeSuccess)
		collector.BatchRequestStarted()
		collector.BatchRequestFinished()
	})
}
