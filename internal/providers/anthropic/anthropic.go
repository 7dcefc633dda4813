// Package anthropic provides the Anthropic Messages API provider.
package anthropic

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

// Registration provides factory registration for the Anthropic provider.
var Registration = providers.Registration{
	Type: "anthropic",
	New: func(cfg config.ProviderConfig, opts providers.ProviderOptions) core.Provider {
		return New(cfg, opts)
	},
}

const (
	defaultBaseURL      = "https://api.anthropic.com/v1"
	defaultModel        = "claude-3-5-haiku-latest"
	defaultMaxTokens    = 1024
	anthropicAPIVersion = "2023-06-01"
)

// Provider implements core.Provider for Anthropic.
type Provider struct {
	client    *llmclient.Client
	apiKey    string
	model     string
	maxTokens int
}

// New creates an Anthropic provider.
func New(cfg config.ProviderConfig, opts providers.ProviderOptions) *Provider {
	p := newProvider(cfg)
	clientCfg := llmclient.DefaultConfig("anthropic", baseURL(cfg))
	clientCfg.Hooks = opts.Hooks
	p.client = llmclient.New(clientCfg, p.setHeaders)
	return p
}

// NewWithHTTPClient creates an Anthropic provider with a custom HTTP client.
func NewWithHTTPClient(cfg config.ProviderConfig, httpClient *http.Client, hooks llmclient.Hooks) *Provider {
	p := newProvider(cfg)
	clientCfg := llmclient.DefaultConfig("anthropic", baseURL(cfg))
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
func (p *Provider) Name() string { return "anthropic" }

// SetBaseURL allows configuring a custom base URL for the provider
func (p *Provider) SetBaseURL(url string) {
	p.client.SetBaseURL(url)
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// convertRequest maps a core request to the Messages API. System messages move to the
// top-level system field, joined by blank lines.
func (p *Provider) convertRequest(req *core.ChatRequest) *messagesRequest {
	out := &messagesRequest{
		Model:       req.Model,
		Messages:    make([]message, 0, len(req.Messages)),
		MaxTokens:   p.maxTokens,
		Temperature: req.Temperature,
	}
	if out.Model == "" {
		out.Model = p.model
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		out.Messages = append(out.Messages, message{Role: msg.Role, Content: msg.Content})
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

// ChatCompletion sends a chat completion request to Anthropic.
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	resp, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     p.convertRequest(req),
	})
	if err != nil {
		return nil, err
	}
	return parseResponse(resp.Body)
}

func parseResponse(body []byte) (*core.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.NewProviderError("anthropic", http.StatusBadGateway, "invalid JSON in response", nil)
	}
	parsed := gjson.ParseBytes(body)

	var text strings.Builder
	for _, block := range parsed.Get("content").Array() {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
	}

	input := int(parsed.Get("usage.input_tokens").Int())
	output := int(parsed.Get("usage.output_tokens").Int())
	return &core.ChatResponse{
		ID:       parsed.Get("id").String(),
		Model:    parsed.Get("model").String(),
		Provider: "anthropic",
		Content:  text.String(),
		Usage: core.Usage{
			PromptTokens:     input,
			CompletionTokens: output,
			TotalTokens:      input + output,
		},
	}, nil
}
