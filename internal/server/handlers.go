// Package server exposes the tool registry over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"medagent/internal/core"
	"medagent/internal/tools"
)

// ToolRunner lists and invokes tools.
type ToolRunner interface {
	List() []tools.Tool
	Call(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	tools ToolRunner
}

// NewHandler creates a new handler serving the given tools
func NewHandler(runner ToolRunner) *Handler {
	return &Handler{tools: runner}
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type toolList struct {
	Object string     `json:"object"`
	Data   []toolInfo `json:"data"`
}

// Health handles GET /health by running the health_check tool.
func (h *Handler) Health(c echo.Context) error {
	result, err := h.tools.Call(c.Request().Context(), "health_check", nil)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// ListTools handles GET /v1/tools
func (h *Handler) ListTools(c echo.Context) error {
	list := h.tools.List()
	resp := toolList{Object: "list", Data: make([]toolInfo, 0, len(list))}
	for _, t := range list {
		resp.Data = append(resp.Data, toolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// CallTool handles POST /v1/tools/:name. The request body is the tool's argument
// object; an empty body means no arguments.
func (h *Handler) CallTool(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("failed to read request body", err))
	}
	if len(body) > 0 && !json.Valid(body) {
		return handleError(c, core.NewInvalidRequestError("request body is not valid JSON", nil))
	}

	result, err := h.tools.Call(c.Request().Context(), c.Param("name"), body)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleError converts tool errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var toolErr *core.ToolError
	if errors.As(err, &toolErr) {
		return c.JSON(toolErr.HTTPStatusCode(), toolErr.ToJSON())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]any{
			"error": map[string]any{
				"type":    "timeout_error",
				"message": "the request timed out",
			},
		})
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, core.NewInternalError(err).ToJSON())
}
