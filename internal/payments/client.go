// Package payments wraps the Stripe API surface the checkout and
// reconciliation flows depend on.
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// Client talks to Stripe with the platform secret key.
type Client struct {
	client *stripe.Client
}

func NewClient(secretKey string) *Client {
	return &Client{client: stripe.NewClient(secretKey)}
}

// IntentParams describes the payment intent for one checkout attempt.
// Metadata carries the cart id, identity, and item summary so webhook
// deliveries can be reconciled and audited without a local lookup.
type IntentParams struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// CreateIntent creates a payment intent for the order total. No money moves
// until the client confirms with the returned secret.
func (c *Client) CreateIntent(ctx context.Context, params IntentParams) (*stripe.PaymentIntent, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", params.AmountCents)
	}

	intent, err := c.client.V1PaymentIntents.Create(ctx, &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: params.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return intent, nil
}

// RetrieveIntent fetches the authoritative intent state. Reconciliation
// always goes through this, never through a client-supplied status.
func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	intent, err := c.client.V1PaymentIntents.Retrieve(ctx, intentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return intent, nil
}

// RetrievePaymentMethod fetches the payment method used for a confirmed
// intent, for the card summary recorded on the order.
func (c *Client) RetrievePaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	method, err := c.client.V1PaymentMethods.Retrieve(ctx, paymentMethodID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment method: %w", err)
	}
	return method, nil
}
