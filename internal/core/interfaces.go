package core

import "context"

// Provider defines the interface for LLM providers
type Provider interface {
	// Name identifies the provider in logs, metrics and errors.
	Name() string

	// ChatCompletion executes a chat completion request
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
