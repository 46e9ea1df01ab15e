package square

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// PaymentCreateParams charges SourceID (a card nonce or card-on-file id).
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

type RefundCreateParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

// CreatePayment charges the card. The settlement engine derives IdempotencyKey from
// the transaction id, so a retried initiation cannot double-charge.
func (c *Client) CreatePayment(ctx context.Context, p PaymentCreateParams) (*sq.Payment, error) {
	if p.LocationID == "" {
		p.LocationID = c.locationID
	}
	req, err := p.request()
	if err != nil {
		return nil, err
	}

	resp, err := c.sdk.Payments.Create(ctx, req)
	fields := map[string]any{"amount_minor": p.AmountCents, "currency": p.Currency, "reference_id": p.ReferenceID}
	if err != nil {
		c.logCall(ctx, "payments.create", fields, err)
		return nil, toDomainError(err, "create payment")
	}
	payment := resp.GetPayment()
	fields["payment_id"], fields["status"] = deref(payment.GetID()), deref(payment.GetStatus())
	c.logCall(ctx, "payments.create", fields, nil)
	return payment, nil
}

// RefundPayment returns Square's refund id.
func (c *Client) RefundPayment(ctx context.Context, p RefundCreateParams) (string, error) {
	req, err := p.request()
	if err != nil {
		return "", err
	}

	resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
	fields := map[string]any{"payment_id": p.PaymentID, "amount_minor": p.AmountCents}
	if err != nil {
		c.logCall(ctx, "refunds.create", fields, err)
		return "", toDomainError(err, "refund payment")
	}
	id, status := refundOf(resp)
	fields["refund_id"], fields["status"] = id, status
	c.logCall(ctx, "refunds.create", fields, nil)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "square refund response missing id")
	}
	return id, nil
}

func (p PaymentCreateParams) request() (*sq.CreatePaymentRequest, error) {
	if strings.TrimSpace(p.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square: payment source required")
	}
	amount, err := money(p.AmountCents, p.Currency)
	if err != nil {
		return nil, err
	}
	return &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey("charge", p.IdempotencyKey),
		SourceID:       p.SourceID,
		AmountMoney:    amount,
		LocationID:     optional(p.LocationID),
		CustomerID:     optional(p.CustomerID),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}, nil
}

func (p RefundCreateParams) request() (*sq.RefundPaymentRequest, error) {
	if strings.TrimSpace(p.PaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square: payment id required for refund")
	}
	amount, err := money(p.AmountCents, p.Currency)
	if err != nil {
		return nil, err
	}
	return &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey("refund", p.IdempotencyKey),
		PaymentID:      optional(p.PaymentID),
		AmountMoney:    amount,
		Reason:         optional(p.Reason),
	}, nil
}

func money(minor int64, currency string) (*sq.Money, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if minor <= 0 || len(code) != 3 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "square: invalid amount %d %s", minor, currency)
	}
	c := sq.Currency(code)
	return &sq.Money{Amount: &minor, Currency: &c}, nil
}

func idempotencyKey(prefix, provided string) string {
	if k := strings.TrimSpace(provided); k != "" {
		return k
	}
	return prefix + "-" + uuid.NewString()
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// refundOf reads id and status through JSON so it does not depend on how the SDK
// types PaymentRefund's optional fields.
func refundOf(resp *sq.RefundPaymentResponse) (id, status string) {
	if resp == nil {
		return "", ""
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return "", ""
	}
	var body struct {
		Refund struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"refund"`
	}
	_ = json.Unmarshal(raw, &body)
	return body.Refund.ID, body.Refund.Status
}
