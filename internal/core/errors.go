// Package core provides the shared types, interfaces and error model of the tool server.
package core

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates bad tool arguments (400)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeNotFound indicates an unknown tool or entity (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeProvider indicates an upstream LLM provider error (5xx)
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeRateLimit indicates an upstream rate limit (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeAuthentication indicates rejected upstream credentials (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypePayment indicates a payment processor error or an unpaid intent (402)
	ErrorTypePayment ErrorType = "payment_error"
	// ErrorTypeNotConfigured indicates an integration without credentials (503)
	ErrorTypeNotConfigured ErrorType = "not_configured_error"
	// ErrorTypeInternal indicates an unexpected failure (500)
	ErrorTypeInternal ErrorType = "internal_error"
)

// ToolError is the error type returned by every tool.
type ToolError struct {
	Type       ErrorType      `json:"type"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Provider   string         `json:"provider,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *ToolError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ToolError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *ToolError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePayment:
		return http.StatusPaymentRequired
	case ErrorTypeNotConfigured:
		return http.StatusServiceUnavailable
	case ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *ToolError) ToJSON() map[string]any {
	body := map[string]any{
		"type":    e.Type,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return map[string]any{"error": body}
}

// WithDetails attaches client-visible details and returns the error.
func (e *ToolError) WithDetails(details map[string]any) *ToolError {
	e.Details = details
	return e
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *ToolError {
	return &ToolError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *ToolError {
	return &ToolError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewProviderError creates a new provider error (upstream 5xx)
func NewProviderError(provider string, statusCode int, message string, err error) *ToolError {
	return &ToolError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewRateLimitError creates a new rate limit error (429)
func NewRateLimitError(provider string, message string) *ToolError {
	return &ToolError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Provider:   provider,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(provider string, message string) *ToolError {
	return &ToolError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Provider:   provider,
	}
}

// NewPaymentError creates a payment error. statusCode 0 means 402.
func NewPaymentError(statusCode int, message string, err error) *ToolError {
	return &ToolError{
		Type:       ErrorTypePayment,
		Message:    message,
		StatusCode: statusCode,
		Provider:   "stripe",
		Err:        err,
	}
}

// NewNotConfiguredError reports an integration that has no credentials (503)
func NewNotConfiguredError(integration string) *ToolError {
	return &ToolError{
		Type:       ErrorTypeNotConfigured,
		Message:    integration + " not configured",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewInternalError wraps an unexpected error. The message shown to clients is generic.
func NewInternalError(err error) *ToolError {
	return &ToolError{
		Type:       ErrorTypeInternal,
		Message:    "an unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ParseProviderError maps an upstream error response to a ToolError.
// Both OpenAI ({"error":{"message":...}}) and Anthropic ({"type":"error","error":{...}})
// bodies carry the message at error.message.
func ParseProviderError(provider string, statusCode int, body []byte, originalErr error) *ToolError {
	message := string(body)
	if gjson.ValidBytes(body) {
		if m := gjson.GetBytes(body, "error.message"); m.Exists() && m.String() != "" {
			message = m.String()
		}
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthenticationError(provider, message)
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(provider, message)
	case statusCode >= 400 && statusCode < 500:
		err := NewInvalidRequestError(message, originalErr)
		err.StatusCode = statusCode
		err.Provider = provider
		return err
	default:
		return NewProviderError(provider, http.StatusBadGateway, message, originalErr)
	}
}
