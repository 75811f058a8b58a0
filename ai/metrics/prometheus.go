// Package metrics records workflow, LLM and tool metrics in a private
// Prometheus registry.
package metrics

import (
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "repurpose"

// Status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// PrometheusExporter exports repurposing metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// LLM metrics
	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
	llmRetries  *prometheus.CounterVec

	// Tool call metrics
	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec

	// Loop metrics
	loopOutcomes   *prometheus.CounterVec
	loopIterations *prometheus.HistogramVec

	// Task result cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of completion requests",
		},
		[]string{"provider", "status"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Completion request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"provider"},
	)

	e.llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "token_type"},
	)

	e.llmRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total number of retried completion requests",
		},
		[]string{"provider"},
	)

	e.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool_name", "status"},
	)

	e.toolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "latency_seconds",
			Help:      "Tool call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"tool_name"},
	)

	e.loopOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "outcomes_total",
			Help:      "Terminal states reached by workflow loops",
		},
		[]string{"workflow", "state"},
	)

	e.loopIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "iterations",
			Help:      "Revisions or steps taken by a loop before terminating",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
		[]string{"workflow"},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Task results served from the result cache",
		},
		[]string{"task"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Task result cache lookups that missed",
		},
		[]string{"task"},
	)

	registry.MustRegister(
		e.llmRequests,
		e.llmLatency,
		e.llmTokens,
		e.llmRetries,
		e.toolCalls,
		e.toolLatency,
		e.loopOutcomes,
		e.loopIterations,
		e.cacheHits,
		e.cacheMisses,
	)

	return e
}

// RecordLLMRequest records one completion request.
func (e *PrometheusExporter) RecordLLMRequest(provider string, latency time.Duration, success bool) {
	e.llmRequests.WithLabelValues(provider, status(success)).Inc()
	e.llmLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordLLMTokens records LLM token usage.
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	if count <= 0 {
		return
	}
	e.llmTokens.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordRetry records a retried completion request.
func (e *PrometheusExporter) RecordRetry(provider string) {
	e.llmRetries.WithLabelValues(provider).Inc()
}

// RecordToolCall records a tool call metric.
func (e *PrometheusExporter) RecordToolCall(toolName string, latency time.Duration, success bool) {
	e.toolCalls.WithLabelValues(toolName, status(success)).Inc()
	e.toolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
}

// RecordOutcome records the terminal state of a loop and its iteration count.
func (e *PrometheusExporter) RecordOutcome(workflow, state string, iterations int) {
	e.loopOutcomes.WithLabelValues(workflow, state).Inc()
	e.loopIterations.WithLabelValues(workflow).Observe(float64(iterations))
}

// RecordCacheStats adds the hit and miss counts of one task.
func (e *PrometheusExporter) RecordCacheStats(task string, hits, misses int64) {
	if hits > 0 {
		e.cacheHits.WithLabelValues(task).Add(float64(hits))
	}
	if misses > 0 {
		e.cacheMisses.WithLabelValues(task).Add(float64(misses))
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

// WriteText writes every gathered family in the Prometheus text format.
func (e *PrometheusExporter) WriteText(w io.Writer) error {
	families, err := e.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func status(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusError
}
