// Package httpclient builds the outbound HTTP clients shared by the LLM providers and the
// payment processor client.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"medagent/internal/core"
)

// RequestIDHeader carries the inbound request ID to upstream services.
const RequestIDHeader = "X-Request-ID"

// Options holds the transport settings for an outbound client.
type Options struct {
	// Timeout bounds the whole request including reading the body.
	Timeout time.Duration
	// ResponseHeaderTimeout bounds the wait for response headers.
	ResponseHeaderTimeout time.Duration
	// MaxIdleConnsPerHost caps kept-alive connections per upstream host.
	MaxIdleConnsPerHost int
}

// DefaultOptions returns options suitable for LLM and payment APIs.
// HTTP_TIMEOUT and HTTP_RESPONSE_HEADER_TIMEOUT override the timeouts; values are
// integer seconds or Go duration strings.
func DefaultOptions() Options {
	return Options{
		Timeout:               envDuration("HTTP_TIMEOUT", 120*time.Second),
		ResponseHeaderTimeout: envDuration("HTTP_RESPONSE_HEADER_TIMEOUT", 90*time.Second),
		MaxIdleConnsPerHost:   16,
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return fallback
}

// New creates an HTTP client that forwards the request ID found in the request context.
func New(opts Options) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Transport: &requestIDTransport{next: transport},
		Timeout:   opts.Timeout,
	}
}

// NewDefault is New(DefaultOptions()).
func NewDefault() *http.Client {
	return New(DefaultOptions())
}

type requestIDTransport struct {
	next http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := core.GetRequestID(req.Context())
	if id == "" || req.Header.Get(RequestIDHeader) != "" {
		return t.next.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())
	clone.Header.Set(RequestIDHeader, id)
	return t.next.RoundTrip(clone)
}
