// Package payments wraps the Stripe API calls used to charge for document analysis.
package payments

import (
	"context"
	"time"
)

// Payment intent metadata keys.
const (
	MetadataAnalysisType  = "analysis_type"
	MetadataDocumentCount = "document_count"
	MetadataCustomerTier  = "customer_tier"
	MetadataService       = "service"

	ServiceMedicalAnalysis = "medical_analysis"
)

// StatusSucceeded is the payment intent status of a completed payment.
const StatusSucceeded = "succeeded"

// Customer is a billing customer.
type Customer struct {
	ID          string
	Email       string
	Name        string
	Description string
	Created     time.Time
	Metadata    map[string]string
}

// PaymentIntent is a single payment attempt. Amounts are in the currency's minor unit.
type PaymentIntent struct {
	ID             string
	ClientSecret   string
	Amount         int64
	AmountReceived int64
	Currency       string
	Status         string
	CustomerID     string
	Description    string
	Metadata       map[string]string
	Created        time.Time
}

// Paid reports whether the payment completed.
func (p *PaymentIntent) Paid() bool {
	return p.Status == StatusSucceeded
}

// CustomerRequest holds the fields for a new customer.
type CustomerRequest struct {
	Email       string
	Name        string
	Description string
}

// PaymentIntentRequest holds the fields for a new payment intent.
type PaymentIntentRequest struct {
	CustomerID  string
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Client is the payment processor surface the tools depend on.
type Client interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	// ListPaymentIntents returns the customer's most recent payment intents, newest first.
	ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]PaymentIntent, error)
}
