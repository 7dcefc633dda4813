package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"medagent/config"
	"medagent/internal/core"
)

// StripeClient implements Client on the Stripe API.
type StripeClient struct {
	api *client.API
}

// NewStripeClient creates a Stripe client. cfg.BaseURL overrides the API endpoint, which
// is used to point at stripe-mock or a test server.
func NewStripeClient(cfg config.StripeConfig, httpClient *http.Client) (*StripeClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("stripe API key is required")
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     slogLogger{},
		MaxNetworkRetries: stripe.Int64(2),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	api := client.New(cfg.APIKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
	})
	return &StripeClient{api: api}, nil
}

// CreateCustomer creates a customer. The description defaults to one naming the email.
func (c *StripeClient) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	description := req.Description
	if description == "" {
		description = "Medical Analysis Customer - " + req.Email
	}
	params := &stripe.CustomerParams{
		Email:       stripe.String(req.Email),
		Description: stripe.String(description),
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	params.Context = ctx

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return nil, mapError("create customer", err)
	}
	return toCustomer(cust), nil
}

// GetCustomer retrieves a customer. Deleted customers are reported as not found.
func (c *StripeClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.api.Customers.Get(id, params)
	if err != nil {
		return nil, mapError("retrieve customer", err)
	}
	if cust.Deleted {
		return nil, core.NewNotFoundError(fmt.Sprintf("customer %s has been deleted", id))
	}
	return toCustomer(cust), nil
}

// CreatePaymentIntent creates a card payment intent for the customer.
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(req.Currency),
		Customer:           stripe.String(req.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapError("create payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

// GetPaymentIntent retrieves a payment intent.
func (c *StripeClient) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, mapError("retrieve payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

// ListPaymentIntents returns at most limit payment intents for the customer.
func (c *StripeClient) ListPaymentIntents(ctx context.Context, customerID string, limit int) ([]PaymentIntent, error) {
	params := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	params.Limit = stripe.Int64(int64(limit))
	params.Context = ctx
	// Only the first page is needed.
	params.Single = true

	out := make([]PaymentIntent, 0, limit)
	iter := c.api.PaymentIntents.List(params)
	for iter.Next() && len(out) < limit {
		out = append(out, *toPaymentIntent(iter.PaymentIntent()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapError("list payment intents", err)
	}
	return out, nil
}

func toCustomer(c *stripe.Customer) *Customer {
	return &Customer{
		ID:          c.ID,
		Email:       c.Email,
		Name:        c.Name,
		Description: c.Description,
		Created:     time.Unix(c.Created, 0).UTC(),
		Metadata:    c.Metadata,
	}
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Status:         string(pi.Status),
		Description:    pi.Description,
		Metadata:       pi.Metadata,
		Created:        time.Unix(pi.Created, 0).UTC(),
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}

// mapError converts Stripe errors to payment errors carrying Stripe's status and message.
func mapError(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		status := serr.HTTPStatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		if status == http.StatusNotFound {
			nf := core.NewNotFoundError(fmt.Sprintf("%s: %s", op, serr.Msg))
			nf.Provider = "stripe"
			nf.Err = err
			return nf
		}
		return core.NewPaymentError(status, fmt.Sprintf("%s: %s", op, serr.Msg), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.NewPaymentError(http.StatusBadGateway, fmt.Sprintf("%s: %v", op, err), err)
}

// slogLogger routes stripe-go's internal logging to slog at debug level, keeping
// errors and warnings at their own levels.
type slogLogger struct{}

func (slogLogger) Debugf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLogger) Infof(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLogger) Warnf(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLogger) Errorf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
