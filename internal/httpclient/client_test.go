package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medagent/internal/core"
)

func TestNew_ForwardsRequestID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer server.Close()

	client := New(DefaultOptions())

	ctx := core.WithRequestID(context.Background(), "req-42")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "req-42", got)
	assert.Empty(t, req.Header.Get(RequestIDHeader), "caller request must not be modified")
}

func TestNew_KeepsExplicitRequestID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer server.Close()

	ctx := core.WithRequestID(context.Background(), "from-context")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "explicit")

	resp, err := NewDefault().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "explicit", got)
}

func TestDefaultOptions_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "5")
	t.Setenv("HTTP_RESPONSE_HEADER_TIMEOUT", "1500ms")

	opts := DefaultOptions()
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 1500*time.Millisecond, opts.ResponseHeaderTimeout)

	t.Setenv("HTTP_TIMEOUT", "soon")
	assert.Equal(t, 120*time.Second, DefaultOptions().Timeout)
}
