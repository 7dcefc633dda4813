// Package observability exposes Prometheus metrics for tool calls, upstream LLM
// requests, billing quotes and the analysis cache.
//
// A nil *Metrics is valid and records nothing, so callers never check whether
// metrics are enabled.
package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"medagent/internal/core"
	"medagent/internal/llmclient"
)

const namespace = "medagent"

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec

	llmRequests *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
	llmInFlight *prometheus.GaugeVec

	quotes      *prometheus.CounterVec
	quotedCents *prometheus.CounterVec

	cacheLookups *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Use prometheus.DefaultRegisterer to
// serve them from promhttp.Handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result",
		}, []string{"tool", "result", "error_type"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Upstream LLM requests by provider and HTTP status",
		}, []string{"provider", "endpoint", "status"}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Upstream LLM request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		llmInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_requests_in_flight",
			Help:      "Upstream LLM requests currently in flight",
		}, []string{"provider"}),
		quotes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_quotes_total",
			Help:      "Billing calculations by analysis tier",
		}, []string{"tier"}),
		quotedCents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_quoted_amount_cents_total",
			Help:      "Sum of quoted amounts in minor currency units",
		}, []string{"tier", "currency"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_lookups_total",
			Help:      "Analysis cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveToolCall records one tool invocation.
func (m *Metrics) ObserveToolCall(tool string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result, errType := resultSuccess, ""
	if err != nil {
		result, errType = resultError, "internal"
		var toolErr *core.ToolError
		if errors.As(err, &toolErr) {
			errType = string(toolErr.Type)
		}
	}
	m.toolCalls.WithLabelValues(tool, result, errType).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveQuote records a computed price.
func (m *Metrics) ObserveQuote(tier, currency string, amountCents int64) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(tier).Inc()
	m.quotedCents.WithLabelValues(tier, currency).Add(float64(amountCents))
}

// ObserveCacheLookup records an analysis cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Hooks returns llmclient hooks feeding the LLM request metrics.
func (m *Metrics) Hooks() llmclient.Hooks {
	if m == nil {
		return llmclient.Hooks{}
	}
	return llmclient.Hooks{
		OnRequestStart: func(_ context.Context, info llmclient.RequestInfo) {
			m.llmInFlight.WithLabelValues(info.Provider).Inc()
		},
		OnRequestEnd: func(_ context.Context, info llmclient.RequestInfo, statusCode int, duration time.Duration) {
			m.llmInFlight.WithLabelValues(info.Provider).Dec()
			status := "network_error"
			if statusCode > 0 {
				status = strconv.Itoa(statusCode)
			}
			m.llmRequests.WithLabelValues(info.Provider, info.Endpoint, status).Inc()
			m.llmDuration.WithLabelValues(info.Provider).Observe(duration.Seconds())
		},
	}
}
