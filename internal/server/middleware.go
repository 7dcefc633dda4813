package server

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"medagent/internal/core"
)

const headerRequestID = "X-Request-ID"

// RequestIDMiddleware propagates the client's X-Request-ID, or generates one, into
// the response header and the request context.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(headerRequestID, requestID)
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), requestID)))
			return next(c)
		}
	}
}

// RequestLoggerMiddleware logs one line per request through slog.
func RequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				slog.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	})
}

// DecompressMiddleware transparently decodes gzip, deflate and brotli request
// bodies. The decoded body may not exceed maxSize bytes.
func DecompressMiddleware(maxSize int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			encoding := strings.ToLower(strings.TrimSpace(req.Header.Get(echo.HeaderContentEncoding)))
			if encoding == "" || encoding == "identity" || req.Body == nil {
				return next(c)
			}

			body, err := decompressBody(req.Body, encoding, maxSize)
			if err != nil {
				if errors.Is(err, errBodyTooLarge) {
					return handleError(c, &core.ToolError{
						Type:       core.ErrorTypeInvalidRequest,
						Message:    "decompressed request body too large",
						StatusCode: http.StatusRequestEntityTooLarge,
					})
				}
				return handleError(c, core.NewInvalidRequestError("invalid "+encoding+" request body", err))
			}

			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

var errBodyTooLarge = errors.New("body too large")

func decompressBody(body io.Reader, encoding string, maxSize int64) ([]byte, error) {
	var reader io.Reader
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	case "deflate":
		fr := flate.NewReader(body)
		defer fr.Close()
		reader = fr
	case "br":
		reader = brotli.NewReader(body)
	default:
		return nil, errors.New("unsupported content encoding: " + encoding)
	}

	// Read one byte past the limit to detect oversized payloads.
	decoded, err := io.ReadAll(io.LimitReader(reader, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(decoded)) > maxSize {
		return nil, errBodyTooLarge
	}
	return decoded, nil
}
