package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Refunder executes the refund computed by the cancellation policy. Gateway
// specifics stay behind this interface; refund failures are logged by the
// caller and never undo a committed cancellation.
type Refunder interface {
	Refund(ctx context.Context, paymentRef string, amountCents int64) error
}

// StripeRefunder issues refunds against a payment intent. The API client is
// constructed explicitly (no package-level stripe.Key) so tests can swap a
// fake without process-wide mutation.
type StripeRefunder struct {
	api *client.API
}

func NewStripeRefunder(apiKey string) *StripeRefunder {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeRefunder{api: api}
}

func (r *StripeRefunder) Refund(ctx context.Context, paymentRef string, amountCents int64) error {
	if paymentRef == "" {
		return fmt.Errorf("no payment reference on booking")
	}
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentRef),
		Amount:        stripe.Int64(amountCents),
	}
	if _, err := r.api.Refunds.New(params); err != nil {
		return fmt.Errorf("stripe refund: %w", err)
	}
	return nil
}

// NoopRefunder is for dev environments without a payment gateway.
type NoopRefunder struct{}

func (NoopRefunder) Refund(context.Context, string, int64) error { return nil }
