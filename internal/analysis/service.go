// Package analysis turns medical document text into priced, structured analyses.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"medagent/internal/billing"
	"medagent/internal/cache"
	"medagent/internal/core"
	"medagent/internal/extract"
	"medagent/internal/observability"
	"medagent/internal/payments"
)

// Analysis tiers with tier-specific output sections.
const (
	TypeBasic         = "basic"
	TypeComprehensive = "comprehensive"
	TypeBatch         = "batch"
)

const narrativeSystemPrompt = "You are a clinical documentation assistant. Summarize the document " +
	"for a clinician in at most five sentences. Use only facts stated in the document and the " +
	"extracted findings. Do not diagnose or prescribe."

// Request is one document to analyze.
type Request struct {
	Content string
	// AnalysisType defaults to basic when empty.
	AnalysisType string
	PatientID    string
}

// BillingInfo describes the tier an analysis was priced at.
type BillingInfo struct {
	Tier        string      `json:"tier"`
	Price       json.Number `json:"price"`
	Description string      `json:"description"`
}

// DetailedAnalysis is added to comprehensive analyses.
type DetailedAnalysis struct {
	RiskFactors      []string `json:"risk_factors"`
	Recommendations  []string `json:"recommendations"`
	FollowUpRequired bool     `json:"follow_up_required"`
}

// BatchSummary is added to batch analyses.
type BatchSummary struct {
	DocumentsProcessed int         `json:"documents_processed"`
	TotalCost          json.Number `json:"total_cost"`
}

// ExtractedData holds the extracted fields and the tier-specific sections.
type ExtractedData struct {
	extract.Fields
	DetailedAnalysis *DetailedAnalysis `json:"detailed_analysis,omitempty"`
	BatchSummary     *BatchSummary     `json:"batch_summary,omitempty"`
}

// Narrative is an LLM-written summary of the document.
type Narrative struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Summary  string `json:"summary"`
}

// PaymentConfirmation is attached to analyses that were paid for.
type PaymentConfirmation struct {
	PaymentConfirmed bool        `json:"payment_confirmed"`
	PaymentIntentID  string      `json:"payment_intent_id"`
	AmountPaid       json.Number `json:"amount_paid"`
	Currency         string      `json:"currency"`
	ProcessedAt      time.Time   `json:"processed_at"`
}

// Analysis is the result of analyzing one document.
type Analysis struct {
	ID            string        `json:"analysis_id"`
	AnalysisType  string        `json:"analysis_type"`
	BillingInfo   BillingInfo   `json:"billing_info"`
	Timestamp     time.Time     `json:"timestamp"`
	PatientID     string        `json:"patient_id,omitempty"`
	ExtractedData ExtractedData `json:"extracted_data"`
	Narrative     *Narrative    `json:"narrative,omitempty"`
	Cached        bool          `json:"cached"`
	*PaymentConfirmation
}

// cachedResult is the content-derived part of an analysis. Digest identifies the
// document it was computed from; the cache key alone is not collision-resistant.
type cachedResult struct {
	Digest        string        `json:"digest"`
	ExtractedData ExtractedData `json:"extracted_data"`
	Narrative     *Narrative    `json:"narrative,omitempty"`
}

// Options holds the optional collaborators of a Service.
type Options struct {
	// Cache stores content-derived results. Nil disables caching.
	Cache cache.Cache
	// Provider writes narratives for comprehensive analyses. Nil disables narratives.
	Provider core.Provider
	// Payments is required by ProcessPaid only.
	Payments payments.Client
	Metrics  *observability.Metrics
}

// Service analyzes documents. It is safe for concurrent use.
type Service struct {
	calc      *billing.Calculator
	extractor *extract.Extractor
	cache     cache.Cache
	provider  core.Provider
	payments  payments.Client
	metrics   *observability.Metrics

	now   func() time.Time
	newID func() string
}

// NewService creates an analysis service.
func NewService(calc *billing.Calculator, extractor *extract.Extractor, opts Options) *Service {
	c := opts.Cache
	if c == nil {
		c = cache.NoopCache{}
	}
	return &Service{
		calc:      calc,
		extractor: extractor,
		cache:     c,
		provider:  opts.Provider,
		payments:  opts.Payments,
		metrics:   opts.Metrics,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NarrativeEnabled reports whether comprehensive analyses request an LLM narrative.
func (s *Service) NarrativeEnabled() bool {
	return s.provider != nil
}

// Analyze extracts fields from the document and adds the sections of the requested tier.
func (s *Service) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	analysisType := req.AnalysisType
	if analysisType == "" {
		analysisType = TypeBasic
	}
	tier, ok := s.calc.Tier(analysisType)
	if !ok {
		return nil, &billing.InvalidTierError{Tier: analysisType, Valid: s.calc.TierNames()}
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, core.NewInvalidRequestError("document_content is required", nil)
	}

	key := cache.Key(analysisType, req.Content)
	digest := contentDigest(analysisType, req.Content)
	result, hit, err := cache.GetJSON[cachedResult](ctx, s.cache, key)
	if err != nil {
		slog.Warn("analysis cache read failed", "error", err)
	}
	if hit && result.Digest != digest {
		slog.Warn("analysis cache entry belongs to another document", "key", key)
		hit = false
	}
	s.metrics.ObserveCacheLookup(hit)

	if !hit {
		var complete bool
		result, complete = s.compute(ctx, analysisType, tier, req.Content)
		result.Digest = digest
		// A result missing its narrative is served but not cached.
		if complete {
			if err := cache.SetJSON(ctx, s.cache, key, result); err != nil {
				slog.Warn("analysis cache write failed", "error", err)
			}
		}
	}

	return &Analysis{
		ID:           s.newID(),
		AnalysisType: analysisType,
		BillingInfo: BillingInfo{
			Tier:        tier.Name,
			Price:       json.Number(tier.UnitPrice.StringFixed(2)),
			Description: tier.Description,
		},
		Timestamp:     s.now().UTC(),
		PatientID:     req.PatientID,
		ExtractedData: result.ExtractedData,
		Narrative:     result.Narrative,
		Cached:        hit,
	}, nil
}

func (s *Service) compute(ctx context.Context, analysisType string, tier billing.Tier, content string) (cachedResult, bool) {
	data := ExtractedData{Fields: s.extractor.Extract(content)}

	var narrative *Narrative
	complete := true
	switch analysisType {
	case TypeComprehensive:
		factors, recs := assessRisk(data.Fields)
		data.DetailedAnalysis = &DetailedAnalysis{
			RiskFactors:      factors,
			Recommendations:  recs,
			FollowUpRequired: true,
		}
		if s.provider != nil {
			narrative = s.narrate(ctx, content, data.Fields)
			complete = narrative != nil
		}
	case TypeBatch:
		data.BatchSummary = &BatchSummary{
			DocumentsProcessed: 1,
			TotalCost:          json.Number(tier.UnitPrice.StringFixed(2)),
		}
	}
	return cachedResult{ExtractedData: data, Narrative: narrative}, complete
}

// narrate asks the provider for a summary. Failures are logged and yield no narrative.
func (s *Service) narrate(ctx context.Context, content string, fields extract.Fields) *Narrative {
	temperature := 0.2
	resp, err := s.provider.ChatCompletion(ctx, &core.ChatRequest{
		Temperature: &temperature,
		Messages: []core.Message{
			{Role: "system", Content: narrativeSystemPrompt},
			{Role: "user", Content: narrativePrompt(content, fields)},
		},
	})
	if err != nil {
		slog.Warn("narrative generation failed", "provider", s.provider.Name(), "error", err)
		return nil
	}
	return &Narrative{Provider: resp.Provider, Model: resp.Model, Summary: strings.TrimSpace(resp.Content)}
}

func narrativePrompt(content string, fields extract.Fields) string {
	var b strings.Builder
	b.WriteString("Document:\n")
	b.WriteString(content)
	b.WriteString("\n\nExtracted findings:\n")
	for _, f := range fields.VitalSigns {
		fmt.Fprintf(&b, "- %s: %s\n", f.Kind, f.Value)
	}
	if meds := extract.Values(fields.Medications); len(meds) > 0 {
		fmt.Fprintf(&b, "- medications: %s\n", strings.Join(meds, ", "))
	}
	if conds := extract.Values(fields.Conditions); len(conds) > 0 {
		fmt.Fprintf(&b, "- conditions: %s\n", strings.Join(conds, ", "))
	}
	return b.String()
}

// ProcessPaid analyzes a document paid for by the given payment intent. The analysis
// type comes from the intent's metadata. Unpaid intents are rejected with a payment error.
func (s *Service) ProcessPaid(ctx context.Context, paymentIntentID string, content, patientID string) (*Analysis, error) {
	if s.payments == nil {
		return nil, core.NewNotConfiguredError("Stripe")
	}
	if paymentIntentID == "" {
		return nil, core.NewInvalidRequestError("payment_intent_id is required", nil)
	}

	pi, err := s.payments.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if !pi.Paid() {
		return nil, core.NewPaymentError(0, "Payment not confirmed or failed", nil).
			WithDetails(map[string]any{
				"payment_intent_id": pi.ID,
				"status":            pi.Status,
			})
	}

	analysisType := pi.Metadata[payments.MetadataAnalysisType]
	if analysisType == "" {
		analysisType = TypeBasic
	}

	a, err := s.Analyze(ctx, Request{Content: content, AnalysisType: analysisType, PatientID: patientID})
	if err != nil {
		var tierErr *billing.InvalidTierError
		if errors.As(err, &tierErr) {
			return nil, core.NewPaymentError(0, fmt.Sprintf("payment intent %s names unknown analysis type %q", pi.ID, analysisType), err)
		}
		return nil, err
	}

	a.PaymentConfirmation = &PaymentConfirmation{
		PaymentConfirmed: true,
		PaymentIntentID:  pi.ID,
		AmountPaid:       json.Number(centsToUnits(pi.AmountReceived)),
		Currency:         pi.Currency,
		ProcessedAt:      s.now().UTC(),
	}
	slog.Info("paid analysis processed",
		"payment_intent_id", pi.ID,
		"analysis_type", analysisType,
		"analysis_id", a.ID,
	)
	return a, nil
}

// contentDigest is the sha256 of the tier and document, length-prefixed like cache.Key.
func contentDigest(analysisType, content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s%d:%s", len(analysisType), analysisType, len(content), content)
	return hex.EncodeToString(h.Sum(nil))
}

func centsToUnits(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
