package guardrails

import (
	"context"
	"log/slog"

	"medagent/internal/core"
)

// GuardedProvider wraps a Provider and anonymizes every request before it leaves
// the process. It implements core.Provider.
type GuardedProvider struct {
	inner      core.Provider
	anonymizer *Anonymizer
	restore    bool
}

// NewGuardedProvider creates a Provider that anonymizes requests before delegating to
// inner. When restore is set, original values are put back into the response.
func NewGuardedProvider(inner core.Provider, anonymizer *Anonymizer, restore bool) *GuardedProvider {
	return &GuardedProvider{
		inner:      inner,
		anonymizer: anonymizer,
		restore:    restore,
	}
}

// Name delegates to the inner provider.
func (g *GuardedProvider) Name() string {
	return g.inner.Name()
}

// ChatCompletion anonymizes the request then forwards it.
func (g *GuardedProvider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	anonymized, tokens := g.anonymizer.AnonymizeChatRequest(req)
	if len(tokens) > 0 {
		slog.Debug("pii replaced in prompt",
			"provider", g.inner.Name(),
			"replacements", len(tokens),
			"request_id", core.GetRequestID(ctx),
		)
	}

	resp, err := g.inner.ChatCompletion(ctx, anonymized)
	if err != nil {
		return nil, err
	}
	if g.restore {
		return g.anonymizer.DeanonymizeChatResponse(resp, tokens), nil
	}
	return resp, nil
}
