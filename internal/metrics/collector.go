// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the prometheus instruments for the search service.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Search pipeline metrics
	searchesTotal  *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	stageDuration  *prometheus.HistogramVec
	searchQuality  prometheus.Histogram
	documentsKept  prometheus.Histogram
	filterDiscards *prometheus.CounterVec

	// LLM metrics
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec

	// Source connector metrics
	sourceDocuments *prometheus.CounterVec
	sourceFailures  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a Collector registered on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of searches",
		},
		[]string{"status"}, // ok, no_candidates, error
	)
	c.searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End to end search duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)
	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_stage_duration_seconds",
			Help:      "Per stage search duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	c.searchQuality = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_quality_score",
			Help:      "Quality score of completed searches",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
	c.documentsKept = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "documents_kept",
			Help:      "Documents surviving the quality filter per search",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	c.filterDiscards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_discards_total",
			Help:      "Documents discarded by the quality filter",
		},
		[]string{"reason"}, // search_page, low_quality, blocked_domain, duplicate
	)

	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "operation", "status"},
	)
	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	c.sourceDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_documents_total",
			Help:      "Documents returned by source connectors",
		},
		[]string{"source"},
	)
	c.sourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Source connector failures",
		},
		[]string{"source"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSearch records one completed search.
func (c *Collector) RecordSearch(status string, duration time.Duration, quality float64, kept int) {
	c.searchesTotal.WithLabelValues(status).Inc()
	c.searchDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status == "ok" {
		c.searchQuality.Observe(quality)
		c.documentsKept.Observe(float64(kept))
	}
}

// RecordStage records one pipeline stage duration.
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordFilterDiscards records filter discard counts by reason.
func (c *Collector) RecordFilterDiscards(searchPages, lowQuality, blockedDomains, duplicates int) {
	c.filterDiscards.WithLabelValues("search_page").Add(float64(searchPages))
	c.filterDiscards.WithLabelValues("low_quality").Add(float64(lowQuality))
	c.filterDiscards.WithLabelValues("blocked_domain").Add(float64(blockedDomains))
	c.filterDiscards.WithLabelValues("duplicate").Add(float64(duplicates))
}

// RecordLLMRequest records one LLM call.
func (c *Collector) RecordLLMRequest(provider, operation, status string, duration time.Duration) {
	c.llmRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordSourceResult records a connector's contribution to one search.
func (c *Collector) RecordSourceResult(source string, documents int, failed bool) {
	if failed {
		c.sourceFailures.WithLabelValues(source).Inc()
		return
	}
	c.sourceDocuments.WithLabelValues(source).Add(float64(documents))
}

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
