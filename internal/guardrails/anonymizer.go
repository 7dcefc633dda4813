// Package guardrails protects patient data in prompts sent to LLM providers.
package guardrails

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"medagent/config"
	"medagent/internal/core"
)

// Strategy constants for anonymization strategies.
const (
	StrategyToken = "token"
	StrategyHash  = "hash"
	StrategyMask  = "mask"
)

// Anonymizer handles PII detection and anonymization.
type Anonymizer struct {
	strategy string
	patterns []PIIPattern

	// tokenCounter is used to generate unique token IDs
	tokenCounter uint64
	tokenMu      sync.Mutex
}

// NewAnonymizer creates a new Anonymizer with the given configuration.
func NewAnonymizer(cfg config.AnonymizationConfig) *Anonymizer {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyToken
	}
	return &Anonymizer{
		strategy: strategy,
		patterns: enabledPatterns(cfg.Detectors),
	}
}

// TokenMap maps replacement tokens back to the original values.
type TokenMap map[string]string

// AnonymizeChatRequest returns a copy of req with PII replaced in every message,
// and the map needed to restore it.
func (a *Anonymizer) AnonymizeChatRequest(req *core.ChatRequest) (*core.ChatRequest, TokenMap) {
	tokens := make(TokenMap)
	byValue := make(map[string]string)

	newReq := *req
	newReq.Messages = make([]core.Message, len(req.Messages))
	for i, msg := range req.Messages {
		newReq.Messages[i] = core.Message{
			Role:    msg.Role,
			Content: a.anonymizeText(msg.Content, tokens, byValue),
		}
	}
	return &newReq, tokens
}

// Anonymize replaces PII in a single text.
func (a *Anonymizer) Anonymize(text string) (string, TokenMap) {
	tokens := make(TokenMap)
	return a.anonymizeText(text, tokens, make(map[string]string)), tokens
}

// anonymizeText detects and replaces PII. byValue keeps one token per distinct value
// across all texts of a request.
func (a *Anonymizer) anonymizeText(text string, tokens TokenMap, byValue map[string]string) string {
	if text == "" {
		return text
	}

	result := text
	for _, pattern := range a.patterns {
		result = pattern.Pattern.ReplaceAllStringFunc(result, func(match string) string {
			if token, ok := byValue[match]; ok {
				return token
			}
			token := a.generateToken(pattern.Type, match)
			byValue[match] = token
			if _, taken := tokens[token]; !taken {
				tokens[token] = match
			}
			return token
		})
	}
	return result
}

// generateToken creates a replacement token for a PII value.
func (a *Anonymizer) generateToken(piiType PIIType, value string) string {
	switch a.strategy {
	case StrategyHash:
		hash := sha256.Sum256([]byte(value))
		return fmt.Sprintf("[%s_%s]", piiType, hex.EncodeToString(hash[:])[:8])

	case StrategyMask:
		// Keep the first and last character visible
		if len(value) <= 2 {
			return fmt.Sprintf("[%s_***]", piiType)
		}
		return fmt.Sprintf("[%s_%c***%c]", piiType, value[0], value[len(value)-1])

	default:
		a.tokenMu.Lock()
		a.tokenCounter++
		id := a.tokenCounter
		a.tokenMu.Unlock()
		return fmt.Sprintf("[%s_%x]", piiType, id)
	}
}

// DeanonymizeChatResponse restores original PII values in a ChatResponse.
func (a *Anonymizer) DeanonymizeChatResponse(resp *core.ChatResponse, tokens TokenMap) *core.ChatResponse {
	if resp == nil || len(tokens) == 0 {
		return resp
	}
	newResp := *resp
	newResp.Content = a.Deanonymize(resp.Content, tokens)
	return &newResp
}

// Deanonymize replaces tokens with original values. Masked tokens are not unique, so
// two values sharing a mask restore to the first one seen.
func (a *Anonymizer) Deanonymize(text string, tokens TokenMap) string {
	if text == "" || len(tokens) == 0 {
		return text
	}
	pairs := make([]string, 0, 2*len(tokens))
	for token, original := range tokens {
		pairs = append(pairs, token, original)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
