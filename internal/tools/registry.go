// Package tools exposes the analysis, billing, patient and payment operations as named
// tools with JSON arguments and JSON results.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medagent/internal/billing"
	"medagent/internal/core"
	"medagent/internal/observability"
)

// HandlerFunc runs a tool with its raw JSON arguments.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a named operation with a JSON Schema describing its arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Handler     HandlerFunc    `json:"-"`
}

// Registry holds the registered tools in registration order.
// Registration happens at startup; Call is safe for concurrent use afterwards.
type Registry struct {
	tools   map[string]Tool
	order   []string
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		metrics: metrics,
	}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return errors.New("tool name and handler are required")
	}
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Call runs the named tool. Errors are always *core.ToolError, except for context
// cancellation which is returned unchanged.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("unknown tool: %s", name)).
			WithDetails(map[string]any{"available_tools": r.Names()})
	}

	start := time.Now()
	result, err := t.Handler(ctx, args)
	err = toToolError(err)
	r.metrics.ObserveToolCall(name, err, time.Since(start))

	if err != nil {
		slog.Debug("tool call failed",
			"tool", name,
			"request_id", core.GetRequestID(ctx),
			"error", err,
		)
		return nil, err
	}
	return result, nil
}

// decodeArgs decodes tool arguments strictly: unknown fields and trailing data are
// rejected, and empty arguments decode as {}.
func decodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, core.NewInvalidRequestError("invalid arguments: "+err.Error(), err)
	}
	if dec.More() {
		return v, core.NewInvalidRequestError("invalid arguments: unexpected data after JSON object", nil)
	}
	return v, nil
}

// toToolError maps domain errors to tool errors at the tool boundary.
func toToolError(err error) error {
	if err == nil {
		return nil
	}

	var toolErr *core.ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}

	var tierErr *billing.InvalidTierError
	if errors.As(err, &tierErr) {
		return core.NewInvalidRequestError(err.Error(), err).
			WithDetails(map[string]any{"available_types": tierErr.Valid})
	}
	var countErr *billing.InvalidCountError
	if errors.As(err, &countErr) {
		return core.NewInvalidRequestError(err.Error(), err)
	}
	var customerErr *billing.InvalidCustomerTierError
	if errors.As(err, &customerErr) {
		return core.NewInvalidRequestError(err.Error(), err).
			WithDetails(map[string]any{"available_customer_tiers": customerErr.Valid})
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return core.NewInternalError(err)
}
