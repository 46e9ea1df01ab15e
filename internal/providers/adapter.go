package providers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// CreateRequest asks a provider to open a payment for the external share of a transaction.
type CreateRequest struct {
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	Currency      enums.Currency
	Correlation   map[string]string
	ReturnURL     string
	SourceToken   string
}

// IdempotencyKey is the key the provider sees for this create call.
func (r CreateRequest) IdempotencyKey() string {
	return r.TransactionID.String()
}

// InvoiceDetails is returned by adapters that settle against an issued invoice.
type InvoiceDetails struct {
	Number         string
	DueDate        time.Time
	RoutingDetails map[string]string
}

// CreateResult is the provider's answer to a create call.
type CreateResult struct {
	ExternalRef string
	RedirectURL string
	Payload     string
	ExpiresAt   *time.Time
	Invoice     *InvoiceDetails
}

// RefundRequest refunds part or all of a provider payment.
type RefundRequest struct {
	TransactionID uuid.UUID
	ExternalRef   string
	Amount        decimal.Decimal
	Currency      enums.Currency
	Reason        string
}

// IdempotencyKey is the key the provider sees for this refund call.
func (r RefundRequest) IdempotencyKey() string {
	return "refund-" + r.TransactionID.String()
}

// Event is a provider notification reduced to what settlement needs.
// Ignored events are acknowledged without touching any transaction.
type Event struct {
	ID          string
	Type        string
	ExternalRef string
	Outcome     enums.SettlementOutcome
	Ignored     bool
}

// Adapter is implemented once per payment method.
type Adapter interface {
	Method() enums.PaymentMethod
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	SupportsRefund() bool
	Refund(ctx context.Context, req RefundRequest) (string, error)
	SignatureHeader() string
	VerifySignature(rawBody []byte, signature string) bool
	ParseEvent(rawBody []byte) (*Event, error)
}

// Registry dispatches on payment method.
type Registry struct {
	adapters  map[enums.PaymentMethod]Adapter
	simulated bool
}

// NewRegistry indexes adapters by the method they serve. Duplicate methods are rejected.
func NewRegistry(simulated bool, adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[enums.PaymentMethod]Adapter, len(adapters)), simulated: simulated}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		method := adapter.Method()
		if !method.IsValid() {
			return nil, fmt.Errorf("adapter declares invalid method %q", method)
		}
		if _, exists := r.adapters[method]; exists {
			return nil, fmt.Errorf("duplicate adapter for method %q", method)
		}
		r.adapters[method] = adapter
	}
	return r, nil
}

// Resolve returns the adapter for method or a validation error when none is registered.
func (r *Registry) Resolve(method enums.PaymentMethod) (Adapter, error) {
	if r != nil {
		if adapter, ok := r.adapters[method]; ok {
			return adapter, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
		WithDetails(map[string]any{"method": string(method)})
}

// Methods lists the registered methods in a stable order.
func (r *Registry) Methods() []enums.PaymentMethod {
	methods := make([]enums.PaymentMethod, 0, len(r.adapters))
	for method := range r.adapters {
		methods = append(methods, method)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

// Simulated reports whether the registry was built from simulated adapters.
func (r *Registry) Simulated() bool {
	return r != nil && r.simulated
}

// MinorUnits converts a decimal amount into the provider's integer minor units.
func MinorUnits(amount decimal.Decimal, currency enums.Currency) int64 {
	return amount.Shift(currency.MinorUnits()).Round(0).IntPart()
}
