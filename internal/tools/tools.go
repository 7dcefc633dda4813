package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"medagent/internal/analysis"
	"medagent/internal/billing"
	"medagent/internal/extract"
	"medagent/internal/observability"
	"medagent/internal/patients"
	"medagent/internal/payments"
	"medagent/internal/version"
)

// ServiceName is reported by health_check and get_available_services.
const ServiceName = "Medical Document Analysis Service"

// Integrations reports which external services have credentials.
type Integrations struct {
	Stripe    bool `json:"stripe_configured"`
	Anthropic bool `json:"anthropic_configured"`
	OpenAI    bool `json:"openai_configured"`
}

// Deps holds the services the tools run on.
type Deps struct {
	Calculator *billing.Calculator
	Extractor  *extract.Extractor
	Analysis   *analysis.Service
	Patients   *patients.Directory
	// Payments enables the payment tools. Nil leaves them unregistered.
	Payments     payments.Client
	Metrics      *observability.Metrics
	Integrations Integrations
	CacheBackend string
	// NarrativeProviders lists the LLM providers in fallback order.
	NarrativeProviders []string
}

// toolset binds tool handlers to their dependencies.
type toolset struct {
	Deps
	registry *Registry
	now      func() time.Time
}

// New builds the registry with every tool the dependencies support.
func New(deps Deps) (*Registry, error) {
	ts := &toolset{
		Deps:     deps,
		registry: NewRegistry(deps.Metrics),
		now:      time.Now,
	}
	return ts.registry, ts.registerAll()
}

func (ts *toolset) registerAll() error {
	tiers := ts.Calculator.TierNames()
	customerTiers := ts.Calculator.CustomerTierNames()

	all := []Tool{
		{
			Name:        "health_check",
			Description: "Report service health, configured integrations and available tools.",
			InputSchema: objectSchema(map[string]any{}),
			Handler:     ts.healthCheck,
		},
		{
			Name:        "extract_medical_fields",
			Description: "Extract vital signs, medications and conditions from medical text. Negations are not detected.",
			InputSchema: objectSchema(map[string]any{
				"text": stringProp("Medical document text"),
			}, "text"),
			Handler: ts.extractFields,
		},
		{
			Name:        "analyze_medical_document",
			Description: "Analyze a medical document (SOAP notes, lab reports, histories) and return structured findings for the chosen tier.",
			InputSchema: objectSchema(map[string]any{
				"document_content": stringProp("Raw medical document text"),
				"analysis_type":    enumProp("Analysis tier", tiers, analysis.TypeBasic),
				"patient_id":       stringProp("Optional patient identifier"),
			}, "document_content"),
			Handler: ts.analyzeDocument,
		},
		{
			Name:        "get_patient_summary",
			Description: "Summarize a patient's demographics, conditions, medications and last recorded vitals.",
			InputSchema: objectSchema(map[string]any{
				"patient_id": stringProp("Patient identifier, e.g. patient_001"),
			}, "patient_id"),
			Handler: ts.patientSummary,
		},
		{
			Name:        "calculate_billing",
			Description: "Price an analysis order with volume and customer-tier discounts.",
			InputSchema: objectSchema(map[string]any{
				"analysis_type":  enumProp("Analysis tier", tiers, ""),
				"document_count": countProp("Number of documents to process"),
				"customer_tier":  enumProp("Customer discount tier", customerTiers, billing.DefaultCustomerTier),
			}, "analysis_type"),
			Handler: ts.calculateBilling,
		},
		{
			Name:        "get_available_services",
			Description: "Describe the service catalog with pricing, features and supported document types.",
			InputSchema: objectSchema(map[string]any{}),
			Handler:     ts.availableServices,
		},
	}
	if ts.Payments != nil {
		all = append(all, ts.paymentTools(tiers, customerTiers)...)
	}

	for _, t := range all {
		if err := ts.registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type healthCheckResult struct {
	Status                string       `json:"status"`
	Service               string       `json:"service"`
	Version               string       `json:"version"`
	Timestamp             time.Time    `json:"timestamp"`
	APIStatus             Integrations `json:"api_status"`
	AvailableTools        []string     `json:"available_tools"`
	PaymentTools          []string     `json:"payment_tools"`
	BillingTiersAvailable []string     `json:"billing_tiers_available"`
	NarrativeProviders    []string     `json:"narrative_providers"`
	CacheBackend          string       `json:"cache_backend"`
}

func (ts *toolset) healthCheck(_ context.Context, args json.RawMessage) (any, error) {
	if _, err := decodeArgs[struct{}](args); err != nil {
		return nil, err
	}

	paymentTools := []string{}
	for _, name := range paymentToolNames {
		if ts.registry.Has(name) {
			paymentTools = append(paymentTools, name)
		}
	}
	providers := ts.NarrativeProviders
	if providers == nil {
		providers = []string{}
	}

	return healthCheckResult{
		Status:                "healthy",
		Service:               ServiceName,
		Version:               version.Version,
		Timestamp:             ts.now().UTC(),
		APIStatus:             ts.Integrations,
		AvailableTools:        ts.registry.Names(),
		PaymentTools:          paymentTools,
		BillingTiersAvailable: ts.Calculator.TierNames(),
		NarrativeProviders:    providers,
		CacheBackend:          ts.CacheBackend,
	}, nil
}

type extractArgs struct {
	Text string `json:"text"`
}

func (ts *toolset) extractFields(_ context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[extractArgs](args)
	if err != nil {
		return nil, err
	}
	return ts.Extractor.Extract(in.Text), nil
}

type analyzeArgs struct {
	DocumentContent string `json:"document_content"`
	AnalysisType    string `json:"analysis_type"`
	PatientID       string `json:"patient_id"`
}

func (ts *toolset) analyzeDocument(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[analyzeArgs](args)
	if err != nil {
		return nil, err
	}
	return ts.Analysis.Analyze(ctx, analysis.Request{
		Content:      in.DocumentContent,
		AnalysisType: in.AnalysisType,
		PatientID:    in.PatientID,
	})
}

type patientArgs struct {
	PatientID string `json:"patient_id"`
}

func (ts *toolset) patientSummary(_ context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[patientArgs](args)
	if err != nil {
		return nil, err
	}
	return ts.Patients.Summary(in.PatientID)
}

type billingArgs struct {
	AnalysisType  string `json:"analysis_type"`
	DocumentCount *int   `json:"document_count"`
	CustomerTier  string `json:"customer_tier"`
}

type billingResult struct {
	AnalysisType             string      `json:"analysis_type"`
	DocumentCount            int         `json:"document_count"`
	CustomerTier             string      `json:"customer_tier"`
	BasePricePerDocument     json.Number `json:"base_price_per_document"`
	Subtotal                 json.Number `json:"subtotal"`
	VolumeDiscountRate       json.Number `json:"volume_discount_rate"`
	VolumeDiscount           json.Number `json:"volume_discount"`
	FinalTotal               json.Number `json:"final_total"`
	CustomerTierDiscountRate json.Number `json:"customer_tier_discount_rate"`
	CustomerTierDiscount     json.Number `json:"customer_tier_discount"`
	TotalDiscount            json.Number `json:"total_discount"`
	AmountDue                json.Number `json:"amount_due"`
	AmountDueCents           int64       `json:"amount_due_cents"`
	Currency                 string      `json:"currency"`
	BillingDate              time.Time   `json:"billing_date"`
}

func (ts *toolset) calculateBilling(_ context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[billingArgs](args)
	if err != nil {
		return nil, err
	}
	count := 1
	if in.DocumentCount != nil {
		count = *in.DocumentCount
	}

	q, err := ts.Calculator.Quote(in.AnalysisType, count, in.CustomerTier)
	if err != nil {
		return nil, err
	}
	ts.Metrics.ObserveQuote(q.Tier, q.Currency, q.AmountCents)

	return billingResult{
		AnalysisType:             q.Tier,
		DocumentCount:            q.DocumentCount,
		CustomerTier:             q.CustomerTier,
		BasePricePerDocument:     money(q.UnitPrice.StringFixed(2)),
		Subtotal:                 money(q.BaseTotal.StringFixed(2)),
		VolumeDiscountRate:       money(q.DiscountRate.String()),
		VolumeDiscount:           money(q.DiscountAmount.StringFixed(2)),
		FinalTotal:               money(q.FinalTotal.StringFixed(2)),
		CustomerTierDiscountRate: money(q.CustomerDiscountRate.String()),
		CustomerTierDiscount:     money(q.CustomerDiscountAmount.StringFixed(2)),
		TotalDiscount:            money(q.DiscountAmount.Add(q.CustomerDiscountAmount).StringFixed(2)),
		AmountDue:                money(q.AmountDue.StringFixed(2)),
		AmountDueCents:           q.AmountCents,
		Currency:                 strings.ToUpper(q.Currency),
		BillingDate:              ts.now().UTC(),
	}, nil
}

func money(s string) json.Number { return json.Number(s) }

type tierInfo struct {
	Price       json.Number `json:"price"`
	Description string      `json:"description"`
}

type volumeDiscountInfo struct {
	MinDocuments int         `json:"min_documents"`
	Rate         json.Number `json:"rate"`
}

type serviceCatalog struct {
	Name                   string                 `json:"name"`
	Version                string                 `json:"version"`
	Description            string                 `json:"description"`
	Currency               string                 `json:"currency"`
	BillingTiers           map[string]tierInfo    `json:"billing_tiers"`
	Features               map[string][]string    `json:"features"`
	VolumeDiscounts        []volumeDiscountInfo   `json:"volume_discounts"`
	CustomerTiers          map[string]json.Number `json:"customer_tiers"`
	SupportedDocumentTypes []string               `json:"supported_document_types"`
	Compliance             []string               `json:"compliance"`
	PaymentsEnabled        bool                   `json:"payments_enabled"`
}

type servicesResult struct {
	ServiceCatalog serviceCatalog    `json:"service_catalog"`
	SampleUsage    map[string]string `json:"sample_usage"`
}

var supportedDocumentTypes = []string{
	"SOAP notes",
	"Lab reports",
	"Prescription summaries",
	"Patient histories",
	"Discharge summaries",
}

var compliance = []string{
	"HIPAA compliant processing",
	"PHI data protection",
	"Audit trail logging",
}

func (ts *toolset) availableServices(_ context.Context, args json.RawMessage) (any, error) {
	if _, err := decodeArgs[struct{}](args); err != nil {
		return nil, err
	}

	catalog := serviceCatalog{
		Name:                   ServiceName,
		Version:                version.Version,
		Description:            "Medical document analysis and information extraction",
		Currency:               strings.ToUpper(ts.Calculator.Currency()),
		BillingTiers:           make(map[string]tierInfo),
		Features:               make(map[string][]string),
		CustomerTiers:          make(map[string]json.Number),
		SupportedDocumentTypes: supportedDocumentTypes,
		Compliance:             compliance,
		PaymentsEnabled:        ts.Payments != nil,
	}
	for _, t := range ts.Calculator.Tiers() {
		catalog.BillingTiers[t.Name] = tierInfo{Price: money(t.UnitPrice.StringFixed(2)), Description: t.Description}
		features := t.Features
		if features == nil {
			features = []string{}
		}
		catalog.Features[t.Name] = features
	}
	for _, b := range ts.Calculator.Brackets() {
		catalog.VolumeDiscounts = append(catalog.VolumeDiscounts, volumeDiscountInfo{
			MinDocuments: b.MinDocuments,
			Rate:         money(b.Rate.String()),
		})
	}
	for _, ct := range ts.Calculator.CustomerTiers() {
		catalog.CustomerTiers[ct.Name] = money(ct.Rate.String())
	}

	return servicesResult{
		ServiceCatalog: catalog,
		SampleUsage: map[string]string{
			"analyze_document": `analyze_medical_document {"document_content": "Patient presents with...", "analysis_type": "comprehensive"}`,
			"get_patient_info": `get_patient_summary {"patient_id": "patient_001"}`,
			"calculate_costs":  `calculate_billing {"analysis_type": "basic", "document_count": 5, "customer_tier": "premium"}`,
		},
	}, nil
}

// describeOrder is the payment description for an order.
func describeOrder(tier billing.Tier, count int) string {
	return fmt.Sprintf("Medical Analysis - %s x%d", tier.Description, count)
}
