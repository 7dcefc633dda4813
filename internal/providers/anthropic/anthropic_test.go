package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medagent/config"
	"medagent/internal/core"
	"medagent/internal/llmclient"
)

func TestConvertRequest(t *testing.T) {
	p := newProvider(config.ProviderConfig{APIKey: "k", Model: "claude-test", MaxTokens: 256})
	temp := 0.2
	maxTokens := 64

	tests := []struct {
		name      string
		input     *core.ChatRequest
		model     string
		system    string
		messages  int
		maxTokens int
	}{
		{
			name:      "defaults from config",
			input:     &core.ChatRequest{Messages: []core.Message{{Role: "user", Content: "Hello"}}},
			model:     "claude-test",
			messages:  1,
			maxTokens: 256,
		},
		{
			name: "system messages are lifted",
			input: &core.ChatRequest{
				Model: "claude-other",
				Messages: []core.Message{
					{Role: "system", Content: "You are a clinical summarizer"},
					{Role: "system", Content: "Be brief"},
					{Role: "user", Content: "Hello"},
				},
				Temperature: &temp,
				MaxTokens:   &maxTokens,
			},
			model:     "claude-other",
			system:    "You are a clinical summarizer\n\nBe brief",
			messages:  1,
			maxTokens: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.convertRequest(tt.input)
			assert.Equal(t, tt.model, got.Model)
			assert.Equal(t, tt.system, got.System)
			assert.Len(t, got.Messages, tt.messages)
			assert.Equal(t, tt.maxTokens, got.MaxTokens)
			assert.Equal(t, tt.input.Temperature, got.Temperature)
		})
	}
}

func TestChatCompletion(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"model": "claude-3-5-haiku-latest",
			"content": [
				{"type": "text", "text": "Patient is "},
				{"type": "tool_use", "id": "x"},
				{"type": "text", "text": "hypertensive."}
			],
			"usage": {"input_tokens": 12, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	p := NewWithHTTPClient(config.ProviderConfig{APIKey: "sk-ant", BaseURL: server.URL + "/"}, server.Client(), llmclient.Hooks{})

	resp, err := p.ChatCompletion(context.Background(), &core.ChatRequest{
		Messages: []core.Message{{Role: "user", Content: "Summarize"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "sk-ant", gotHeaders.Get("x-api-key"))
	assert.Equal(t, anthropicAPIVersion, gotHeaders.Get("anthropic-version"))
	assert.Equal(t, defaultModel, gotBody["model"])
	assert.EqualValues(t, defaultMaxTokens, gotBody["max_tokens"])

	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, "Patient is hypertensive.", resp.Content)
	assert.Equal(t, core.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}, resp.Usage)
}

func TestChatCompletion_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	p := NewWithHTTPClient(config.ProviderConfig{APIKey: "bad", BaseURL: server.URL}, server.Client(), llmclient.Hooks{})

	_, err := p.ChatCompletion(context.Background(), &core.ChatRequest{Messages: []core.Message{{Role: "user", Content: "hi"}}})

	var toolErr *core.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, core.ErrorTypeAuthentication, toolErr.Type)
	assert.Equal(t, "invalid x-api-key", toolErr.Message)
	assert.Equal(t, "anthropic", toolErr.Provider)
}

func TestParseResponse_InvalidJSON(t *testing.T) {
	_, err := parseResponse([]byte("not json"))
	require.Error(t, err)
}
