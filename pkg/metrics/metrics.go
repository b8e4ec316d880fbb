// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RepliesTotal tracks completed reply turns.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_replies_total",
			Help: "Total reply turns processed",
		},
		[]string{"mode", "status"},
	)

	// ReplyDuration tracks full reply turn duration.
	ReplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_reply_duration_seconds",
			Help:    "Full reply turn duration including tool loop",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		},
		[]string{"mode"},
	)

	// ModelCallsTotal tracks individual LLM invocations.
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_model_calls_total",
			Help: "Total LLM provider invocations",
		},
		[]string{"provider", "model", "status"},
	)

	// ToolExecutionsTotal tracks tool-call handler executions.
	ToolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_tool_executions_total",
			Help: "Total tool-call executions",
		},
		[]string{"tool", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// CreditsConsumedTotal tracks credits billed against workspaces.
	CreditsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_credits_consumed_total",
			Help: "Total credits deducted from workspace balances",
		},
		[]string{"workspace_id"},
	)

	// RetrievalChunks tracks how many knowledge chunks retrieval returned.
	RetrievalChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrieval_chunks_returned",
			Help:    "Knowledge chunks returned per retrieval",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordReply records metrics for one completed reply turn.
func RecordReply(mode, status string, duration float64) {
	RepliesTotal.WithLabelValues(mode, status).Inc()
	ReplyDuration.WithLabelValues(mode).Observe(duration)
}

// RecordModelCall records one LLM invocation and its token usage.
func RecordModelCall(provider, model, status string, tokensIn, tokensOut int) {
	ModelCallsTotal.WithLabelValues(provider, model, status).Inc()
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordToolExecution records one tool-call handler execution.
func RecordToolExecution(tool, status string) {
	ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
}
