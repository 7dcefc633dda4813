package guardrails

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medagent/config"
	"medagent/internal/core"
)

func allDetectors() config.DetectorConfig {
	return config.Default().Guardrails.Anonymization.Detectors
}

func TestAnonymize_Detectors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		pii     string
		piiType PIIType
	}{
		{"email", "Contact jane.doe@example.com for results.", "jane.doe@example.com", PIITypeEmail},
		{"phone", "Call (555) 123-4567 after 5pm.", "(555) 123-4567", PIITypePhone},
		{"ssn", "SSN 123-45-6789 on file.", "123-45-6789", PIITypeSSN},
		{"credit card", "Card 4111 1111 1111 1111 charged.", "4111 1111 1111 1111", PIITypeCreditCard},
		{"ip", "Uploaded from 192.168.1.20 today.", "192.168.1.20", PIITypeIPAddress},
		{"medical record", "Patient MRN: 00451234 admitted.", "MRN: 00451234", PIITypeMedicalRecord},
	}

	a := NewAnonymizer(config.AnonymizationConfig{Detectors: allDetectors()})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, tokens := a.Anonymize(tt.text)

			assert.NotContains(t, out, tt.pii)
			assert.Contains(t, out, "["+string(tt.piiType)+"_")
			require.Len(t, tokens, 1)
			for _, original := range tokens {
				assert.Equal(t, tt.pii, original)
			}
			assert.Equal(t, tt.text, a.Deanonymize(out, tokens))
		})
	}
}

func TestAnonymize_LeavesClinicalValues(t *testing.T) {
	a := NewAnonymizer(config.AnonymizationConfig{Detectors: allDetectors()})
	text := "BP 140/90, HR 88, Temp 98.6F, SpO2 97%. Visit 2024-01-15. Metformin 500mg."

	out, tokens := a.Anonymize(text)
	assert.Equal(t, text, out)
	assert.Empty(t, tokens)
}

func TestAnonymize_DisabledDetector(t *testing.T) {
	detectors := allDetectors()
	detectors.Email = false
	a := NewAnonymizer(config.AnonymizationConfig{Detectors: detectors})

	out, _ := a.Anonymize("jane@example.com, SSN 123-45-6789")
	assert.Contains(t, out, "jane@example.com")
	assert.NotContains(t, out, "123-45-6789")
}

func TestAnonymize_Strategies(t *testing.T) {
	const email = "jane@example.com"

	t.Run("hash is deterministic", func(t *testing.T) {
		a := NewAnonymizer(config.AnonymizationConfig{Strategy: StrategyHash, Detectors: allDetectors()})
		first, _ := a.Anonymize(email)
		second, _ := a.Anonymize(email)
		assert.Equal(t, first, second)
		assert.Regexp(t, `^\[EMAIL_[0-9a-f]{8}\]$`, first)
	})

	t.Run("mask keeps first and last character", func(t *testing.T) {
		a := NewAnonymizer(config.AnonymizationConfig{Strategy: StrategyMask, Detectors: allDetectors()})
		out, _ := a.Anonymize(email)
		assert.Equal(t, "[EMAIL_j***m]", out)
	})

	t.Run("token reuses the token for a repeated value", func(t *testing.T) {
		a := NewAnonymizer(config.AnonymizationConfig{Detectors: allDetectors()})
		out, tokens := a.Anonymize(email + " and again " + email)
		require.Len(t, tokens, 1)
		for token := range tokens {
			assert.Equal(t, 2, strings.Count(out, token))
		}
	})
}

type recordingProvider struct {
	got *core.ChatRequest
	err error
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) ChatCompletion(_ context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	p.got = req
	if p.err != nil {
		return nil, p.err
	}
	return &core.ChatResponse{Provider: p.Name()}, nil
}

func TestGuardedProvider(t *testing.T) {
	req := &core.ChatRequest{Messages: []core.Message{
		{Role: "system", Content: "You summarize clinical findings."},
		{Role: "user", Content: "Patient SSN 123-45-6789, email pat@example.com, BP 150/95."},
	}}

	t.Run("anonymizes outgoing and restores response", func(t *testing.T) {
		inner := &recordingProvider{}
		a := NewAnonymizer(config.AnonymizationConfig{Detectors: allDetectors()})
		g := NewGuardedProvider(&echoProvider{recordingProvider: inner}, a, true)

		resp, err := g.ChatCompletion(context.Background(), req)
		require.NoError(t, err)

		sent := inner.got.Messages[1].Content
		assert.NotContains(t, sent, "123-45-6789")
		assert.NotContains(t, sent, "pat@example.com")
		assert.Contains(t, sent, "BP 150/95")
		assert.Equal(t, req.Messages[1].Content, resp.Content)
		assert.Equal(t, "Patient SSN 123-45-6789, email pat@example.com, BP 150/95.", req.Messages[1].Content, "caller's request is not modified")
		assert.Equal(t, "recording", g.Name())
	})

	t.Run("restore disabled", func(t *testing.T) {
		inner := &recordingProvider{}
		g := NewGuardedProvider(&echoProvider{recordingProvider: inner}, NewAnonymizer(config.AnonymizationConfig{Detectors: allDetectors()}), false)

		resp, err := g.ChatCompletion(context.Background(), req)
		require.NoError(t, err)
		assert.NotContains(t, resp.Content, "123-45-6789")
	})

	t.Run("errors pass through", func(t *testing.T) {
		boom := errors.New("upstream down")
		g := NewGuardedProvider(&recordingProvider{err: boom}, NewAnonymizer(config.AnonymizationConfig{}), true)

		_, err := g.ChatCompletion(context.Background(), req)
		assert.ErrorIs(t, err, boom)
	})
}

// echoProvider answers with the content of the last message it received.
type echoProvider struct {
	*recordingProvider
}

func (p *echoProvider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if _, err := p.recordingProvider.ChatCompletion(ctx, req); err != nil {
		return nil, err
	}
	return &core.ChatResponse{Provider: "recording", Content: req.Messages[len(req.Messages)-1].Content}, nil
}
