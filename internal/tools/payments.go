package tools

import (
	"context"
	"encoding/json"
	"net/mail"
	"strconv"
	"time"

	"medagent/internal/analysis"
	"medagent/internal/billing"
	"medagent/internal/core"
	"medagent/internal/payments"
)

// recentPaymentsLimit is how many payment intents get_customer_info returns.
const recentPaymentsLimit = 10

var paymentToolNames = []string{
	"create_customer",
	"create_payment_intent",
	"confirm_payment",
	"process_paid_analysis",
	"get_customer_info",
}

func (ts *toolset) paymentTools(tiers, customerTiers []string) []Tool {
	return []Tool{
		{
			Name:        "create_customer",
			Description: "Create a billing customer.",
			InputSchema: objectSchema(map[string]any{
				"email":       stringProp("Customer email address"),
				"name":        stringProp("Customer name"),
				"description": stringProp("Optional customer description"),
			}, "email"),
			Handler: ts.createCustomer,
		},
		{
			Name:        "create_payment_intent",
			Description: "Create a card payment intent for an analysis order. The amount is the billing quote for the order.",
			InputSchema: objectSchema(map[string]any{
				"customer_id":    stringProp("Customer ID"),
				"analysis_type":  enumProp("Analysis tier", tiers, analysis.TypeBasic),
				"document_count": countProp("Number of documents to analyze"),
				"customer_tier":  enumProp("Customer discount tier", customerTiers, billing.DefaultCustomerTier),
				"description":    stringProp("Optional payment description"),
			}, "customer_id"),
			Handler: ts.createPaymentIntent,
		},
		{
			Name:        "confirm_payment",
			Description: "Retrieve a payment intent and report whether it has been paid.",
			InputSchema: objectSchema(map[string]any{
				"payment_intent_id": stringProp("Payment intent ID"),
			}, "payment_intent_id"),
			Handler: ts.confirmPayment,
		},
		{
			Name:        "process_paid_analysis",
			Description: "Analyze a document after confirming its payment. The analysis tier comes from the payment.",
			InputSchema: objectSchema(map[string]any{
				"payment_intent_id": stringProp("Paid payment intent ID"),
				"document_content":  stringProp("Medical document text to analyze"),
				"patient_id":        stringProp("Optional patient identifier"),
			}, "payment_intent_id", "document_content"),
			Handler: ts.processPaidAnalysis,
		},
		{
			Name:        "get_customer_info",
			Description: "Retrieve a customer and their most recent payments.",
			InputSchema: objectSchema(map[string]any{
				"customer_id": stringProp("Customer ID"),
			}, "customer_id"),
			Handler: ts.customerInfo,
		},
	}
}

type createCustomerArgs struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type customerResult struct {
	Success     bool      `json:"success"`
	CustomerID  string    `json:"customer_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created"`
}

func (ts *toolset) createCustomer(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[createCustomerArgs](args)
	if err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, core.NewInvalidRequestError("invalid email address: "+in.Email, err)
	}

	c, err := ts.Payments.CreateCustomer(ctx, payments.CustomerRequest{
		Email:       in.Email,
		Name:        in.Name,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}
	return customerResult{
		Success:    true,
		CustomerID: c.ID,
		Email:      c.Email,
		Name:       c.Name,
		Created:    c.Created,
	}, nil
}

type createPaymentIntentArgs struct {
	CustomerID    string `json:"customer_id"`
	AnalysisType  string `json:"analysis_type"`
	DocumentCount *int   `json:"document_count"`
	CustomerTier  string `json:"customer_tier"`
	Description   string `json:"description"`
}

type paymentIntentResult struct {
	Success         bool        `json:"success"`
	PaymentIntentID string      `json:"payment_intent_id"`
	ClientSecret    string      `json:"client_secret"`
	Amount          int64       `json:"amount"`
	AmountDue       json.Number `json:"amount_due"`
	Currency        string      `json:"currency"`
	Status          string      `json:"status"`
	AnalysisType    string      `json:"analysis_type"`
	DocumentCount   int         `json:"document_count"`
	CustomerTier    string      `json:"customer_tier"`
}

func (ts *toolset) createPaymentIntent(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[createPaymentIntentArgs](args)
	if err != nil {
		return nil, err
	}
	if in.CustomerID == "" {
		return nil, core.NewInvalidRequestError("customer_id is required", nil)
	}
	if in.AnalysisType == "" {
		in.AnalysisType = analysis.TypeBasic
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

	description := in.Description
	if description == "" {
		tier, _ := ts.Calculator.Tier(q.Tier)
		description = describeOrder(tier, count)
	}

	pi, err := ts.Payments.CreatePaymentIntent(ctx, payments.PaymentIntentRequest{
		CustomerID:  in.CustomerID,
		AmountCents: q.AmountCents,
		Currency:    q.Currency,
		Description: description,
		Metadata: map[string]string{
			payments.MetadataAnalysisType:  q.Tier,
			payments.MetadataDocumentCount: strconv.Itoa(count),
			payments.MetadataCustomerTier:  q.CustomerTier,
			payments.MetadataService:       payments.ServiceMedicalAnalysis,
		},
	})
	if err != nil {
		return nil, err
	}

	return paymentIntentResult{
		Success:         true,
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Amount:          q.AmountCents,
		AmountDue:       money(q.AmountDue.StringFixed(2)),
		Currency:        pi.Currency,
		Status:          pi.Status,
		AnalysisType:    q.Tier,
		DocumentCount:   count,
		CustomerTier:    q.CustomerTier,
	}, nil
}

type paymentIntentArgs struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type confirmPaymentResult struct {
	Success         bool              `json:"success"`
	PaymentIntentID string            `json:"payment_intent_id"`
	Status          string            `json:"status"`
	AmountReceived  int64             `json:"amount_received"`
	Currency        string            `json:"currency"`
	CustomerID      string            `json:"customer_id"`
	Metadata        map[string]string `json:"metadata"`
	Paid            bool              `json:"paid"`
	Created         time.Time         `json:"created"`
}

func (ts *toolset) confirmPayment(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[paymentIntentArgs](args)
	if err != nil {
		return nil, err
	}
	if in.PaymentIntentID == "" {
		return nil, core.NewInvalidRequestError("payment_intent_id is required", nil)
	}

	pi, err := ts.Payments.GetPaymentIntent(ctx, in.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	metadata := pi.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return confirmPaymentResult{
		Success:         true,
		PaymentIntentID: pi.ID,
		Status:          pi.Status,
		AmountReceived:  pi.AmountReceived,
		Currency:        pi.Currency,
		CustomerID:      pi.CustomerID,
		Metadata:        metadata,
		Paid:            pi.Paid(),
		Created:         pi.Created,
	}, nil
}

type processPaidArgs struct {
	PaymentIntentID string `json:"payment_intent_id"`
	DocumentContent string `json:"document_content"`
	PatientID       string `json:"patient_id"`
}

func (ts *toolset) processPaidAnalysis(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[processPaidArgs](args)
	if err != nil {
		return nil, err
	}
	return ts.Analysis.ProcessPaid(ctx, in.PaymentIntentID, in.DocumentContent, in.PatientID)
}

type customerIDArgs struct {
	CustomerID string `json:"customer_id"`
}

type recentPayment struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Created  time.Time         `json:"created"`
	Metadata map[string]string `json:"metadata"`
}

type customerInfoResult struct {
	customerResult
	RecentPayments []recentPayment `json:"recent_payments"`
}

func (ts *toolset) customerInfo(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[customerIDArgs](args)
	if err != nil {
		return nil, err
	}
	if in.CustomerID == "" {
		return nil, core.NewInvalidRequestError("customer_id is required", nil)
	}

	c, err := ts.Payments.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	intents, err := ts.Payments.ListPaymentIntents(ctx, in.CustomerID, recentPaymentsLimit)
	if err != nil {
		return nil, err
	}

	recent := make([]recentPayment, 0, len(intents))
	for _, pi := range intents {
		metadata := pi.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		recent = append(recent, recentPayment{
			ID:       pi.ID,
			Amount:   pi.Amount,
			Currency: pi.Currency,
			Status:   pi.Status,
			Created:  pi.Created,
			Metadata: metadata,
		})
	}

	return customerInfoResult{
		customerResult: customerResult{
			Success:     true,
			CustomerID:  c.ID,
			Email:       c.Email,
			Name:        c.Name,
			Description: c.Description,
			Created:     c.Created,
		},
		RecentPayments: recent,
	}, nil
}
