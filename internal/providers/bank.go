package providers

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// BankSignatureHeader carries the hex HMAC the bank gateway computes over the body.
const BankSignatureHeader = "X-Bank-Signature"

// BankAdapter issues invoices payable by bank transfer. Confirmation arrives from the
// bank gateway webhook or from an operator via manual completion.
type BankAdapter struct {
	cfg config.BankTransferConfig
	now func() time.Time
}

// NewBankAdapter builds the bank-transfer adapter from routing configuration.
func NewBankAdapter(cfg config.BankTransferConfig) *BankAdapter {
	return &BankAdapter{cfg: cfg, now: time.Now}
}

func (a *BankAdapter) Method() enums.PaymentMethod { return enums.PaymentMethodBankTransfer }

func (a *BankAdapter) SupportsRefund() bool { return false }

func (a *BankAdapter) SignatureHeader() string { return BankSignatureHeader }

func (a *BankAdapter) Create(_ context.Context, req CreateRequest) (*CreateResult, error) {
	invoice, err := newInvoice(a.cfg, a.now().UTC())
	if err != nil {
		return nil, err
	}
	return invoiceResult(invoice, req)
}

func (a *BankAdapter) Refund(context.Context, RefundRequest) (string, error) {
	return "", pkgerrors.New(pkgerrors.CodeStateConflict, "bank transfers are refunded manually")
}

func (a *BankAdapter) VerifySignature(rawBody []byte, signature string) bool {
	return verifyHexHMAC(a.cfg.WebhookSecret, rawBody, signature)
}

type bankEvent struct {
	EventID       string `json:"event_id"`
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
}

func (a *BankAdapter) ParseEvent(rawBody []byte) (*Event, error) {
	return parseBankEvent(rawBody)
}

func parseBankEvent(rawBody []byte) (*Event, error) {
	var payload bankEvent
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode bank event")
	}
	event := &Event{ID: payload.EventID, Type: "invoice." + strings.ToLower(payload.Status), ExternalRef: payload.InvoiceNumber}
	switch strings.ToLower(payload.Status) {
	case "paid":
		event.Outcome = enums.SettlementOutcomeSucceeded
	case "rejected", "failed":
		event.Outcome = enums.SettlementOutcomeFailed
	case "cancelled", "canceled", "expired":
		event.Outcome = enums.SettlementOutcomeCanceled
	default:
		event.Ignored = true
	}
	if event.ID == "" {
		event.ID = payload.InvoiceNumber + ":" + strings.ToLower(payload.Status)
	}
	return event, nil
}

func newInvoice(cfg config.BankTransferConfig, now time.Time) (*InvoiceDetails, error) {
	number, err := invoiceNumber(now)
	if err != nil {
		return nil, err
	}
	dueDays := cfg.DueDays
	if dueDays <= 0 {
		dueDays = 7
	}
	routing := map[string]string{"beneficiary": cfg.Beneficiary, "reference": number}
	for key, value := range map[string]string{
		"bank_name":      cfg.BankName,
		"account_number": cfg.AccountNumber,
		"routing_number": cfg.RoutingNumber,
		"swift":          cfg.SWIFT,
	} {
		if strings.TrimSpace(value) != "" {
			routing[key] = value
		}
	}
	return &InvoiceDetails{
		Number:         number,
		DueDate:        now.AddDate(0, 0, dueDays),
		RoutingDetails: routing,
	}, nil
}

func invoiceResult(invoice *InvoiceDetails, req CreateRequest) (*CreateResult, error) {
	payload, err := json.Marshal(map[string]any{
		"invoice_number":  invoice.Number,
		"amount":          req.Amount.StringFixed(req.Currency.MinorUnits()),
		"currency":        req.Currency.String(),
		"due_date":        invoice.DueDate.Format(time.RFC3339),
		"routing_details": invoice.RoutingDetails,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode invoice payload")
	}
	due := invoice.DueDate
	return &CreateResult{
		ExternalRef: invoice.Number,
		Payload:     string(payload),
		ExpiresAt:   &due,
		Invoice:     invoice,
	}, nil
}

// invoiceNumber renders INV-YYYYMMDD-<8 hex>.
func invoiceNumber(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate invoice number")
	}
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf))), nil
}

func verifyHexHMAC(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
