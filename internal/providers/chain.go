package providers

import (
	"context"
	"errors"
	"log/slog"

	"medagent/config"
	"medagent/internal/core"
)

// ErrNoProviders is returned by an empty chain.
var ErrNoProviders = errors.New("no LLM providers configured")

// Chain tries providers in order and returns the first successful response.
type Chain struct {
	providers []core.Provider
}

// NewChain creates a chain over the given providers.
func NewChain(providers ...core.Provider) *Chain {
	return &Chain{providers: providers}
}

// Build creates providers for every type in cfg.Order that has an API key. Types with no
// key are skipped; an unknown type is an error.
func Build(cfg config.ProvidersConfig, factory *ProviderFactory) (*Chain, error) {
	var built []core.Provider
	for _, providerType := range cfg.Order {
		pc, ok := cfg.Get(providerType)
		if !ok {
			return nil, errors.New("unknown provider type in order: " + providerType)
		}
		if pc.APIKey == "" {
			slog.Debug("provider skipped: no api key", "provider", providerType)
			continue
		}
		p, err := factory.Create(providerType, pc)
		if err != nil {
			return nil, err
		}
		built = append(built, p)
	}
	return NewChain(built...), nil
}

// Name implements core.Provider.
func (c *Chain) Name() string { return "chain" }

// Len returns the number of providers in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.providers)
}

// Names returns the provider names in fallback order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// ChatCompletion sends req to each provider in turn until one succeeds. Cancellation of
// ctx stops the chain. When every provider fails the last error is returned.
func (c *Chain) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if c.Len() == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	for i, p := range c.providers {
		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			if resp.Provider == "" {
				resp.Provider = p.Name()
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if i < len(c.providers)-1 {
			slog.Warn("provider failed, trying next",
				"provider", p.Name(),
				"next", c.providers[i+1].Name(),
				"error", err,
				"request_id", core.GetRequestID(ctx),
			)
		}
	}
	return nil, lastErr
}
