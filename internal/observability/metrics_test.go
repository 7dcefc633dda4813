package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"medagent/internal/core"
	"medagent/internal/llmclient"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveToolCall("health_check", nil, time.Millisecond)
		m.ObserveQuote("basic", "usd", 212)
		m.ObserveCacheLookup(true)
	})
	hooks := m.Hooks()
	assert.Nil(t, hooks.OnRequestStart)
	assert.Nil(t, hooks.OnRequestEnd)
}

func TestObserveToolCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveToolCall("calculate_billing", nil, 10*time.Millisecond)
	m.ObserveToolCall("calculate_billing", core.NewInvalidRequestError("bad tier", nil), time.Millisecond)
	m.ObserveToolCall("calculate_billing", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("calculate_billing", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("calculate_billing", "error", "invalid_request_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("calculate_billing", "error", "internal")))
}

func TestObserveQuoteAndCache(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveQuote("basic", "usd", 212)
	m.ObserveQuote("basic", "usd", 10)
	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(false)
	m.ObserveCacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.quotes.WithLabelValues("basic")))
	assert.Equal(t, 222.0, testutil.ToFloat64(m.quotedCents.WithLabelValues("basic", "usd")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}

func TestHooks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hooks := m.Hooks()
	ctx := context.Background()
	info := llmclient.RequestInfo{Provider: "anthropic", Endpoint: "/messages"}

	hooks.OnRequestStart(ctx, info)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmInFlight.WithLabelValues("anthropic")))

	hooks.OnRequestEnd(ctx, info, 200, 300*time.Millisecond)
	hooks.OnRequestStart(ctx, info)
	hooks.OnRequestEnd(ctx, info, 0, time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.llmInFlight.WithLabelValues("anthropic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("anthropic", "/messages", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("anthropic", "/messages", "network_error")))
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
