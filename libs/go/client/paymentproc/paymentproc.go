// Package paymentproc wraps the Stripe-shaped payment processor
// adapter of spec §6/§9, keeping the billing state machine free of
// stripe-go's request/response types.
package paymentproc

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/labrinth-gg/labrinth/libs/go/logger"
)

type Client struct {
	client        *stripe.Client
	webhookSecret string
}

func New(apiKey, webhookSecret string) *Client {
	return &Client{
		client:        stripe.NewClient(apiKey, nil),
		webhookSecret: webhookSecret,
	}
}

// Intent is the subset of a payment intent the billing engine needs
// back from the processor.
type Intent struct {
	ID       string
	Status   string
	Amount   int64
	Currency string
}

// CreatePaymentIntent bootstraps a payment intent against the
// customer's default payment method, attaching the charge id and
// other modrinth_* metadata keys enumerated in spec §6.
func (c *Client) CreatePaymentIntent(ctx context.Context, customerID string, amount int64, currency string, metadata map[string]string) (Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		Customer:      stripe.String(customerID),
		Metadata:      metadata,
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	pi, err := c.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		logger.Error("stripe payment intent creation failed", zap.Error(err), zap.String("customer_id", customerID))
		return Intent{}, fmt.Errorf("paymentproc: create intent: %w", err)
	}
	return Intent{ID: pi.ID, Status: string(pi.Status), Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}

// SetDefaultPaymentMethod attaches a payment method as the customer's
// invoice default, used by the PaymentMethodAttached webhook handler
// when the customer had none.
func (c *Client) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerUpdateParams{
		InvoiceSettings: &stripe.CustomerUpdateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	_, err := c.client.V1Customers.Update(ctx, customerID, params)
	if err != nil {
		return fmt.Errorf("paymentproc: set default payment method: %w", err)
	}
	return nil
}

// HasDefaultPaymentMethod reports whether the customer already has an
// invoice default payment method on file.
func (c *Client) HasDefaultPaymentMethod(ctx context.Context, customerID string) (bool, error) {
	cust, err := c.client.V1Customers.Retrieve(ctx, customerID, &stripe.CustomerRetrieveParams{})
	if err != nil {
		return false, fmt.Errorf("paymentproc: retrieve customer: %w", err)
	}
	return cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil, nil
}

// CustomerAddress fetches the billing address on file, used by the tax
// reconciliation loop to build a tax transaction.
func (c *Client) CustomerAddress(ctx context.Context, customerID string) (*stripe.Address, error) {
	cust, err := c.client.V1Customers.Retrieve(ctx, customerID, &stripe.CustomerRetrieveParams{})
	if err != nil {
		return nil, fmt.Errorf("paymentproc: retrieve customer: %w", err)
	}
	return cust.Address, nil
}

// Refund issues (or partially issues) a refund against a succeeded
// payment intent's latest charge.
func (c *Client) Refund(ctx context.Context, paymentIntentID string, amount int64) error {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amount),
	}
	_, err := c.client.V1Refunds.Create(ctx, params)
	if err != nil {
		return fmt.Errorf("paymentproc: refund: %w", err)
	}
	return nil
}

// VerifyWebhook validates the HMAC signature over the raw request body
// and decodes the event envelope.
func (c *Client) VerifyWebhook(body []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(body, signatureHeader, c.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("paymentproc: signature verification failed: %w", err)
	}
	return event, nil
}
