package stripe

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// PaymentIntentParams describes an instant-transfer charge.
type PaymentIntentParams struct {
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentIntent keeps only what the settlement engine stores.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

type RefundParams struct {
	PaymentIntentID string
	AmountMinor     int64 // zero refunds the full amount
	IdempotencyKey  string
	Reason          string
}

func (p PaymentIntentParams) request(methodType string) (*stripe.PaymentIntentCreateParams, error) {
	if p.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent amount must be positive")
	}
	if len(strings.TrimSpace(p.Currency)) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent currency must be a 3-letter code")
	}
	req := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(p.AmountMinor),
		Currency:           stripe.String(strings.ToLower(strings.TrimSpace(p.Currency))),
		PaymentMethodTypes: stripe.StringSlice([]string{methodType}),
	}
	for k, v := range p.Metadata {
		req.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		req.SetIdempotencyKey(p.IdempotencyKey)
	}
	return req, nil
}

func (p RefundParams) request() (*stripe.RefundCreateParams, error) {
	if strings.TrimSpace(p.PaymentIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund requires a payment intent id")
	}
	req := &stripe.RefundCreateParams{PaymentIntent: stripe.String(p.PaymentIntentID)}
	if p.AmountMinor > 0 {
		req.Amount = stripe.Int64(p.AmountMinor)
	}
	if p.Reason != "" {
		req.AddMetadata("reason", p.Reason)
	}
	if p.IdempotencyKey != "" {
		req.SetIdempotencyKey(p.IdempotencyKey)
	}
	return req, nil
}

// CreatePaymentIntent opens a PaymentIntent restricted to the configured instant method type.
func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	req, err := params.request(c.methodType)
	if err != nil {
		return nil, err
	}
	intent, err := c.api.V1PaymentIntents.Create(ctx, req)
	fields := map[string]any{"amount": params.AmountMinor, "currency": params.Currency}
	if err != nil {
		c.logCall(ctx, "create_payment_intent", fields, err)
		return nil, toDomainError(err, "create payment intent")
	}
	fields["payment_intent_id"] = intent.ID
	fields["status"] = string(intent.Status)
	c.logCall(ctx, "create_payment_intent", fields, nil)
	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret, Status: string(intent.Status)}, nil
}

// Refund returns the Stripe refund id.
func (c *Client) Refund(ctx context.Context, params RefundParams) (string, error) {
	req, err := params.request()
	if err != nil {
		return "", err
	}
	refund, err := c.api.V1Refunds.Create(ctx, req)
	fields := map[string]any{"payment_intent_id": params.PaymentIntentID, "amount": params.AmountMinor}
	if err != nil {
		c.logCall(ctx, "create_refund", fields, err)
		return "", toDomainError(err, "create refund")
	}
	fields["refund_id"] = refund.ID
	c.logCall(ctx, "create_refund", fields, nil)
	return refund.ID, nil
}
