// Package observability provides Prometheus metrics for monitoring the
// kompanion gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// BrainRequestsTotal counts model backend calls by skill, mode
	// (complete or stream), and outcome.
	BrainRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kompanion_brain_requests_total",
			Help: "Model backend requests",
		},
		[]string{"skill", "mode", "status"},
	)

	// BrainLatency records model backend latency in seconds.
	BrainLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kompanion_brain_latency_seconds",
			Help:    "Model backend latency",
			Buckets: LLMBuckets,
		},
		[]string{"skill", "mode"},
	)

	// ToolExecutionsTotal counts tool dispatches by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kompanion_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// ToolDuration records tool dispatch duration in seconds.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kompanion_tool_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool_name"},
	)

	// LoopRounds records how many model rounds each invocation used.
	LoopRounds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kompanion_loop_rounds",
			Help:    "Model rounds per invocation",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)

	// FallbackExtractionsTotal counts tool calls recovered from
	// text-embedded JSON instead of structured tool_calls.
	FallbackExtractionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kompanion_fallback_extractions_total",
			Help: "Text-embedded tool calls intercepted",
		},
	)

	// StreamingConnections tracks the number of active SSE connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kompanion_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		BrainRequestsTotal,
		BrainLatency,
		ToolExecutionsTotal,
		ToolDuration,
		LoopRounds,
		FallbackExtractionsTotal,
		StreamingConnections,
	)
}
