// Package issuer wraps the card-issuing provider's API for the two
// outbound calls the reconciliation engine makes: out-of-band fee
// charges and card status updates.
package issuer

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// Client is the card-issuing provider API surface consumed by the
// engine. Both calls are side effects fired after the ledger mutation
// has committed; failures are logged by the caller, never rolled back
// into the ledger.
type Client interface {
	// CreateCharge bills the provider-side user account and returns the
	// provider's reference for the charge. amount is in minor units.
	CreateCharge(ctx context.Context, providerUserRef string, amount int64, description string) (string, error)
	// UpdateCard pushes a card status change (e.g. blocked) to the
	// provider.
	UpdateCard(ctx context.Context, providerCardRef string, status string) error
}

type stripeClient struct {
	api      *client.API
	currency string
}

// NewStripeClient creates a Client backed by the Stripe API.
func NewStripeClient(secretKey, currency string) Client {
	if secretKey == "" {
		panic("stripe secret key is required")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeClient{api: api, currency: currency}
}

func (c *stripeClient) CreateCharge(ctx context.Context, providerUserRef string, amount int64, description string) (string, error) {
	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(c.currency),
		Customer:    stripe.String(providerUserRef),
		Description: stripe.String(description),
	}
	params.Context = ctx

	charge, err := c.api.Charges.New(params)
	if err != nil {
		return "", fmt.Errorf("create charge for %s: %w", providerUserRef, err)
	}
	return charge.ID, nil
}

func (c *stripeClient) UpdateCard(ctx context.Context, providerCardRef string, status string) error {
	params := &stripe.IssuingCardParams{
		Status: stripe.String(mapCardStatus(status)),
	}
	params.Context = ctx

	if _, err := c.api.IssuingCards.Update(providerCardRef, params); err != nil {
		return fmt.Errorf("update card %s: %w", providerCardRef, err)
	}
	return nil
}

// mapCardStatus translates ledger card statuses to the provider's
// vocabulary.
func mapCardStatus(status string) string {
	switch status {
	case "blocked", "inactive":
		return string(stripe.IssuingCardStatusInactive)
	case "canceled":
		return string(stripe.IssuingCardStatusCanceled)
	default:
		return string(stripe.IssuingCardStatusActive)
	}
}
