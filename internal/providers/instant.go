package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/stripe"
)

const instantPaymentTTL = 15 * time.Minute

type stripePayments interface {
	CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Refund(ctx context.Context, params stripe.RefundParams) (string, error)
	ConstructEvent(payload []byte, signatureHeader string) (*stripe.Event, error)
}

// InstantAdapter issues QR/instant-transfer PaymentIntents through Stripe.
type InstantAdapter struct {
	client stripePayments
	now    func() time.Time
}

// NewInstantAdapter wraps a Stripe client.
func NewInstantAdapter(client stripePayments) (*InstantAdapter, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &InstantAdapter{client: client, now: time.Now}, nil
}

func (a *InstantAdapter) Method() enums.PaymentMethod { return enums.PaymentMethodInstantTransfer }

func (a *InstantAdapter) SupportsRefund() bool { return true }

func (a *InstantAdapter) SignatureHeader() string { return stripe.SignatureHeader }

func (a *InstantAdapter) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	metadata := map[string]string{"transaction_id": req.TransactionID.String()}
	for k, v := range req.Correlation {
		metadata[k] = v
	}
	intent, err := a.client.CreatePaymentIntent(ctx, stripe.PaymentIntentParams{
		AmountMinor:    MinorUnits(req.Amount, req.Currency),
		Currency:       req.Currency.String(),
		IdempotencyKey: req.IdempotencyKey(),
		Metadata:       metadata,
	})
	if err != nil {
		return nil, err
	}
	expires := a.now().UTC().Add(instantPaymentTTL)
	return &CreateResult{
		ExternalRef: intent.ID,
		Payload:     intent.ClientSecret,
		RedirectURL: req.ReturnURL,
		ExpiresAt:   &expires,
	}, nil
}

func (a *InstantAdapter) Refund(ctx context.Context, req RefundRequest) (string, error) {
	return a.client.Refund(ctx, stripe.RefundParams{
		PaymentIntentID: req.ExternalRef,
		AmountMinor:     MinorUnits(req.Amount, req.Currency),
		IdempotencyKey:  req.IdempotencyKey(),
		Reason:          req.Reason,
	})
}

func (a *InstantAdapter) VerifySignature(rawBody []byte, signature string) bool {
	if signature == "" {
		return false
	}
	_, err := a.client.ConstructEvent(rawBody, signature)
	return err == nil
}

type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"object"`
	} `json:"data"`
}

func (a *InstantAdapter) ParseEvent(rawBody []byte) (*Event, error) {
	var payload stripeEnvelope
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event")
	}
	event := &Event{ID: payload.ID, Type: payload.Type, ExternalRef: payload.Data.Object.ID}
	switch payload.Type {
	case "payment_intent.succeeded":
		event.Outcome = enums.SettlementOutcomeSucceeded
	case "payment_intent.payment_failed":
		event.Outcome = enums.SettlementOutcomeFailed
	case "payment_intent.canceled":
		event.Outcome = enums.SettlementOutcomeCanceled
	default:
		event.Ignored = true
	}
	return event, nil
}
