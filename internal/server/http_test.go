package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	stub := &stubRunner{result: map[string]string{"status": "healthy"}}
	srv := New(stub, nil)

	t.Run("generates request ID when missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		got := rec.Header().Get("X-Request-ID")
		require.NotEmpty(t, got)
		assert.Len(t, got, 36, "expected a UUID")
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "my-custom-id")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, "my-custom-id", rec.Header().Get("X-Request-ID"))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	stub := &stubRunner{}

	tests := []struct {
		name       string
		config     *Config
		path       string
		wantStatus int
	}{
		{"disabled by default", nil, "/metrics", http.StatusNotFound},
		{"enabled at default path", &Config{MetricsEnabled: true}, "/metrics", http.StatusOK},
		{"custom path", &Config{MetricsEnabled: true, MetricsEndpoint: "/internal/metrics"}, "/internal/metrics", http.StatusOK},
		{"custom path is cleaned", &Config{MetricsEnabled: true, MetricsEndpoint: "/internal/../prom/"}, "/prom", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(stub, tt.config)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestDecompressMiddleware(t *testing.T) {
	const payload = `{"text":"BP 140/90, HR 88. Taking metformin for diabetes."}`

	gz := func(s string) []byte {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		_, _ = w.Write([]byte(s))
		_ = w.Close()
		return buf.Bytes()
	}
	br := func(s string) []byte {
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		_, _ = w.Write([]byte(s))
		_ = w.Close()
		return buf.Bytes()
	}

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"identity", "", []byte(payload)},
		{"gzip", "gzip", gz(payload)},
		{"brotli", "br", br(payload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubRunner{result: map[string]string{}}
			srv := New(stub, nil)

			req := httptest.NewRequest(http.MethodPost, "/v1/tools/extract_medical_fields", bytes.NewReader(tt.body))
			if tt.encoding != "" {
				req.Header.Set("Content-Encoding", tt.encoding)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, payload, string(stub.lastArgs))
		})
	}

	t.Run("corrupt body", func(t *testing.T) {
		srv := New(&stubRunner{}, nil)
		req := httptest.NewRequest(http.MethodPost, "/v1/tools/extract_medical_fields", strings.NewReader("not gzip"))
		req.Header.Set("Content-Encoding", "gzip")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported encoding", func(t *testing.T) {
		srv := New(&stubRunner{}, nil)
		req := httptest.NewRequest(http.MethodPost, "/v1/tools/extract_medical_fields", strings.NewReader(payload))
		req.Header.Set("Content-Encoding", "zstd")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("decompressed size is limited", func(t *testing.T) {
		srv := New(&stubRunner{}, &Config{BodySizeLimit: 1024})
		big := `{"text":"` + strings.Repeat("a", 4096) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/tools/extract_medical_fields", bytes.NewReader(gz(big)))
		req.Header.Set("Content-Encoding", "gzip")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestBodyLimit(t *testing.T) {
	srv := New(&stubRunner{}, &Config{BodySizeLimit: 16})
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/extract_medical_fields",
		strings.NewReader(`{"text":"this body is longer than sixteen bytes"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	srv := New(panicRunner{&stubRunner{}}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tools/anything", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicRunner struct{ *stubRunner }

func (panicRunner) Call(_ context.Context, _ string, _ json.RawMessage) (any, error) {
	panic("tool exploded")
}
