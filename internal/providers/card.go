package providers

import (
	"context"
	"encoding/json"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/square"
)

type squarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (string, error)
	VerifyWebhook(body []byte, signature string) bool
}

// CardAdapter takes card payments through Square.
type CardAdapter struct {
	client squarePayments
}

// NewCardAdapter wraps a Square client.
func NewCardAdapter(client squarePayments) (*CardAdapter, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client required")
	}
	return &CardAdapter{client: client}, nil
}

func (a *CardAdapter) Method() enums.PaymentMethod { return enums.PaymentMethodCard }

func (a *CardAdapter) SupportsRefund() bool { return true }

func (a *CardAdapter) SignatureHeader() string { return square.SignatureHeader }

func (a *CardAdapter) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if strings.TrimSpace(req.SourceToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source token is required")
	}
	payment, err := a.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    MinorUnits(req.Amount, req.Currency),
		Currency:       req.Currency.String(),
		SourceID:       req.SourceToken,
		IdempotencyKey: req.IdempotencyKey(),
		ReferenceID:    req.TransactionID.String(),
	})
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.GetID() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square payment response missing id")
	}
	result := &CreateResult{ExternalRef: *payment.GetID()}
	if receipt := payment.GetReceiptURL(); receipt != nil {
		result.RedirectURL = *receipt
	}
	if result.RedirectURL == "" {
		result.RedirectURL = req.ReturnURL
	}
	return result, nil
}

func (a *CardAdapter) Refund(ctx context.Context, req RefundRequest) (string, error) {
	return a.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      req.ExternalRef,
		AmountCents:    MinorUnits(req.Amount, req.Currency),
		Currency:       req.Currency.String(),
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey(),
	})
}

func (a *CardAdapter) VerifySignature(rawBody []byte, signature string) bool {
	return a.client.VerifyWebhook(rawBody, signature)
}

type squarePaymentEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		ID     string `json:"id"`
		Object struct {
			Payment struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

func (a *CardAdapter) ParseEvent(rawBody []byte) (*Event, error) {
	var payload squarePaymentEvent
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square event")
	}
	event := &Event{ID: payload.EventID, Type: payload.Type}
	if !strings.HasPrefix(strings.ToLower(payload.Type), "payment.") {
		event.Ignored = true
		return event, nil
	}
	event.ExternalRef = payload.Data.Object.Payment.ID
	if event.ExternalRef == "" {
		event.ExternalRef = payload.Data.ID
	}
	switch strings.ToUpper(payload.Data.Object.Payment.Status) {
	case "COMPLETED":
		event.Outcome = enums.SettlementOutcomeSucceeded
	case "FAILED":
		event.Outcome = enums.SettlementOutcomeFailed
	case "CANCELED":
		event.Outcome = enums.SettlementOutcomeCanceled
	default:
		event.Ignored = true
	}
	return event, nil
}
