// Package openai provides the OpenAI chat completions provider.
package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"medagent/config"
	"medagent/internal/core"
	"medagent/internal/llmclient"
	"medagent/internal/providers"
)

// Registration provides factory registration for the OpenAI provider.
var Registration = providers.Registration{
	Type: "openai",
	New: func(cfg config.ProviderConfig, opts providers.ProviderOptions) core.Provider {
		return New(cfg, opts)
	},
}

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1024
)

// Provider implements core.Provider for OpenAI
type Provider struct {
	client    *llmclient.Client
	apiKey    string
	model     string
	maxTokens int
}

// New creates an OpenAI provider.
func New(cfg config.ProviderConfig, opts providers.ProviderOptions) *Provider {
	p := newProvider(cfg)
	clientCfg := llmclient.DefaultConfig("openai", baseURL(cfg))
	clientCfg.Hooks = opts.Hooks
	p.client = llmclient.New(clientCfg, p.setHeaders)
	return p
}

// NewWithHTTPClient creates an OpenAI provider with a custom HTTP client.
func NewWithHTTPClient(cfg config.ProviderConfig, httpClient *http.Client, hooks llmclient.Hooks) *Provider {
	p := newProvider(cfg)
	clientCfg := llmclient.DefaultConfig("openai", baseURL(cfg))
	clientCfg.Hooks = hooks
	p.client = llmclient.NewWithHTTPClient(httpClient, clientCfg, p.setHeaders)
	return p
}

func newProvider(cfg config.ProviderConfig) *Provider {
	p := &Provider{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultMaxTokens
	}
	return p
}

func baseURL(cfg config.ProviderConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return defaultBaseURL
}

// Name implements core.Provider.
func (p *Provider) Name() string { return "openai" }

// SetBaseURL allows configuring a custom base URL for the provider
func (p *Provider) SetBaseURL(url string) {
	p.client.SetBaseURL(url)
}

// setHeaders sets the required headers for OpenAI API requests
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	// OpenAI rejects X-Client-Request-Id values that are not ASCII or exceed 512 bytes.
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

// isOSeriesModel reports whether the model is an o-series reasoning model
// (o1, o3, o4), which takes max_completion_tokens and no temperature.
func isOSeriesModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

type chatRequest struct {
	Model               string         `json:"model"`
	Messages            []core.Message `json:"messages"`
	Temperature         *float64       `json:"temperature,omitempty"`
	MaxTokens           *int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int           `json:"max_completion_tokens,omitempty"`
}

func (p *Provider) convertRequest(req *core.ChatRequest) *chatRequest {
	out := &chatRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}
	if out.Model == "" {
		out.Model = p.model
	}

	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	if isOSeriesModel(out.Model) {
		out.MaxCompletionTokens = &maxTokens
		return out
	}
	out.MaxTokens = &maxTokens
	out.Temperature = req.Temperature
	return out
}

// ChatCompletion sends a chat completion request to OpenAI
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	resp, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     p.convertRequest(req),
	})
	if err != nil {
		return nil, err
	}
	return parseResponse(resp.Body)
}

func parseResponse(body []byte) (*core.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.NewProviderError("openai", http.StatusBadGateway, "invalid JSON in response", nil)
	}
	parsed := gjson.ParseBytes(body)

	content := parsed.Get("choices.0.message.content")
	if !content.Exists() {
		return nil, core.NewProviderError("openai", http.StatusBadGateway, "response has no choices", nil)
	}

	return &core.ChatResponse{
		ID:       parsed.Get("id").String(),
		Model:    parsed.Get("model").String(),
		Provider: "openai",
		Content:  content.String(),
		Usage: core.Usage{
			PromptTokens:     int(parsed.Get("usage.prompt_tokens").Int()),
			CompletionTokens: int(parsed.Get("usage.completion_tokens").Int()),
			TotalTokens:      int(parsed.Get("usage.total_tokens").Int()),
		},
	}, nil
}
