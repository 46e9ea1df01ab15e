package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// SimulatedSignatureHeader is read but never checked by simulated adapters.
const SimulatedSignatureHeader = "X-Simulated-Signature"

const simulatedCheckoutBase = "https://checkout.simulated.local/pay/"

// SimulatedAdapter answers deterministically and trusts every webhook.
// It is only built when providers run in simulated mode.
type SimulatedAdapter struct {
	method enums.PaymentMethod
	bank   config.BankTransferConfig
	now    func() time.Time
}

// NewSimulatedAdapter returns a fake adapter for method.
func NewSimulatedAdapter(method enums.PaymentMethod, bank config.BankTransferConfig) *SimulatedAdapter {
	return &SimulatedAdapter{method: method, bank: bank, now: time.Now}
}

func (a *SimulatedAdapter) Method() enums.PaymentMethod { return a.method }

func (a *SimulatedAdapter) SupportsRefund() bool {
	return a.method != enums.PaymentMethodBankTransfer
}

func (a *SimulatedAdapter) SignatureHeader() string { return SimulatedSignatureHeader }

// ExternalRefFor is the reference a simulated create returns for txID.
func ExternalRefFor(method enums.PaymentMethod, idempotencyKey string) string {
	return fmt.Sprintf("sim_%s_%s", method, idempotencyKey)
}

func (a *SimulatedAdapter) Create(_ context.Context, req CreateRequest) (*CreateResult, error) {
	now := a.now().UTC()
	switch a.method {
	case enums.PaymentMethodBankTransfer:
		invoice, err := newInvoice(a.bank, now)
		if err != nil {
			return nil, err
		}
		return invoiceResult(invoice, req)
	case enums.PaymentMethodInstantTransfer:
		ref := ExternalRefFor(a.method, req.IdempotencyKey())
		expires := now.Add(instantPaymentTTL)
		return &CreateResult{
			ExternalRef: ref,
			Payload:     "simulated-qr:" + ref,
			RedirectURL: req.ReturnURL,
			ExpiresAt:   &expires,
		}, nil
	default:
		ref := ExternalRefFor(a.method, req.IdempotencyKey())
		redirect := simulatedCheckoutBase + ref
		if req.ReturnURL != "" {
			redirect += "?return_to=" + url.QueryEscape(req.ReturnURL)
		}
		return &CreateResult{ExternalRef: ref, RedirectURL: redirect}, nil
	}
}

func (a *SimulatedAdapter) Refund(_ context.Context, req RefundRequest) (string, error) {
	if !a.SupportsRefund() {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "bank transfers are refunded manually")
	}
	return "sim_" + req.IdempotencyKey(), nil
}

func (a *SimulatedAdapter) VerifySignature([]byte, string) bool { return true }

type simulatedEvent struct {
	EventID     string `json:"event_id"`
	ExternalRef string `json:"external_ref"`
	Outcome     string `json:"outcome"`
}

func (a *SimulatedAdapter) ParseEvent(rawBody []byte) (*Event, error) {
	if a.method == enums.PaymentMethodBankTransfer {
		return parseBankEvent(rawBody)
	}
	var payload simulatedEvent
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode simulated event")
	}
	event := &Event{ID: payload.EventID, Type: "simulated." + payload.Outcome, ExternalRef: payload.ExternalRef}
	outcome, err := enums.ParseSettlementOutcome(strings.ToLower(payload.Outcome))
	if err != nil {
		event.Ignored = true
		return event, nil
	}
	event.Outcome = outcome
	if event.ID == "" {
		event.ID = payload.ExternalRef + ":" + outcome.String()
	}
	return event, nil
}
