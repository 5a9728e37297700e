package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// One collector for the whole test binary: instruments register on the
// default registry and cannot be registered twice.
var collector = NewCollector("memflow_test", nil)

func TestCollector_RecordSearch(t *testing.T) {
	collector.RecordSearch("ok", 2*time.Second, 0.8, 5)
	collector.RecordSearch("no_candidates", time.Second, 0, 0)
	collector.RecordSearch("error", time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.searchesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.searchesTotal.WithLabelValues("no_candidates")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.searchesTotal.WithLabelValues("error")))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector.RecordHTTPRequest("POST", "/search", 200, 50*time.Millisecond)
	collector.RecordHTTPRequest("POST", "/search", 502, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/search", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/search", "5xx")))
}

func TestCollector_RecordFilterDiscards(t *testing.T) {
	collector.RecordFilterDiscards(2, 3, 1, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.filterDiscards.WithLabelValues("search_page")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.filterDiscards.WithLabelValues("low_quality")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.filterDiscards.WithLabelValues("blocked_domain")))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.filterDiscards.WithLabelValues("duplicate")))
}

func TestCollector_RecordSourceResult(t *testing.T) {
	collector.RecordSourceResult("document_store", 7, false)
	collector.RecordSourceResult("browser_history", 0, true)

	assert.Equal(t, 7.0, testutil.ToFloat64(collector.sourceDocuments.WithLabelValues("document_store")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sourceFailures.WithLabelValues("browser_history")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(42))
}
