package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/internal/inventory"
	"github.com/angelmondragon/packfinderz-settlement/internal/providers"
	"github.com/angelmondragon/packfinderz-settlement/internal/transactions"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	dbtypes "github.com/angelmondragon/packfinderz-settlement/pkg/db/types"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// InitiateInput describes a payment request.
type InitiateInput struct {
	UserID         uuid.UUID
	Kind           enums.TransactionKind
	Amount         decimal.Decimal
	BonusAmount    decimal.Decimal
	Currency       enums.Currency
	Method         enums.PaymentMethod
	Correlation    map[string]string
	SubscriptionID *uuid.UUID
	Items          []inventory.ReservationRequest
	SourceToken    string
	ReturnURL      string
}

// InitiateResult is returned to the caller after a transaction was created.
type InitiateResult struct {
	TransactionID   uuid.UUID
	State           enums.TransactionState
	AmountToPay     decimal.Decimal
	ExternalRef     string
	RedirectURL     string
	ProviderPayload string
	ExpiresAt       *time.Time
	Invoice         *providers.InvoiceDetails
}

// Initiate validates the request, reserves stock, and either settles a fully bonus-covered
// transaction on the spot or opens a provider payment for the remaining amount.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if err := s.validateInitiate(&input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(s.logg.WithUserID(ctx, input.UserID.String()), map[string]any{
		"method": string(input.Method),
		"kind":   string(input.Kind),
	})

	if input.BonusAmount.IsPositive() {
		ok, err := s.credits.Validate(ctx, input.UserID, input.BonusAmount)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredit, "bonus credit balance too low").
				WithDetails(map[string]any{"bonus_amount": input.BonusAmount.StringFixed(2)})
		}
	}

	amountToPay := input.Amount.Sub(input.BonusAmount)
	if amountToPay.IsZero() {
		return s.initiateCoveredByBonus(ctx, input)
	}

	adapter, resolveErr := s.providers.Resolve(input.Method)
	if resolveErr != nil {
		// The rejected request still leaves a pending record behind as its trace.
		txn := s.newTransaction(input, nil)
		if err := s.transactions.Create(ctx, txn); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}
		s.logg.Warn(s.logCtx(ctx, txn), "payment method has no provider adapter")
		s.metrics.IncInitiated(string(input.Method), string(txn.State))
		return nil, resolveErr
	}

	var txn *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reserved, err := s.reserve(ctx, tx, input.Items)
		if err != nil {
			return err
		}
		txn = s.newTransaction(input, reserved)
		if err := s.transactions.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logCtx(ctx, txn)
	s.metrics.IncInitiated(string(txn.Method), string(txn.State))

	result, err := s.createWithProvider(ctx, adapter, txn, input)
	if err != nil {
		s.metrics.IncProviderError(string(txn.Method), "create")
		s.logg.Error(ctx, "provider create failed; transaction left pending", err)
		return nil, err
	}

	if err := s.attachProviderResult(ctx, txn, result); err != nil {
		s.logg.Error(ctx, "persist provider result failed", err)
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "external_ref", result.ExternalRef), "payment initiated")

	return &InitiateResult{
		TransactionID:   txn.ID,
		State:           txn.State,
		AmountToPay:     amountToPay,
		ExternalRef:     result.ExternalRef,
		RedirectURL:     result.RedirectURL,
		ProviderPayload: result.Payload,
		ExpiresAt:       result.ExpiresAt,
		Invoice:         result.Invoice,
	}, nil
}

func (s *Service) initiateCoveredByBonus(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	var txn *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reserved, err := s.reserve(ctx, tx, input.Items)
		if err != nil {
			return err
		}
		txn = s.newTransaction(input, reserved)
		if err := s.transactions.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}
		applied, err := s.applySettlement(ctx, tx, txn, enums.SettlementOutcomeSucceeded, actorFor(txn))
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeInternal, "fresh transaction was not pending")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncInitiated(string(txn.Method), string(txn.State))
	s.metrics.IncSettled(string(enums.SettlementOutcomeSucceeded), "applied")
	s.logg.Info(s.logCtx(ctx, txn), "payment covered by bonus credit settled synchronously")

	return &InitiateResult{
		TransactionID: txn.ID,
		State:         txn.State,
		AmountToPay:   decimal.Zero,
	}, nil
}

func (s *Service) validateInitiate(input *InitiateInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transaction kind %q", input.Kind)
	}
	if !input.Method.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment method %q", input.Method)
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if input.BonusAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "bonus amount must not be negative")
	}
	if input.BonusAmount.GreaterThan(input.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "bonus amount must not exceed amount")
	}
	if input.Currency == "" {
		input.Currency = s.defaultCurrency
	}
	currency, err := enums.ParseCurrency(string(input.Currency))
	if err != nil {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}
	input.Currency = currency
	if !currency.Representable(input.Amount) || !currency.Representable(input.BonusAmount) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "amount has more decimals than %s allows", currency)
	}
	if input.Kind == enums.TransactionKindRenewal && input.SubscriptionID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "renewal requires a subscription id")
	}
	for _, item := range input.Items {
		if item.ItemID == uuid.Nil || item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "items require an id and a positive quantity")
		}
	}
	return nil
}

func (s *Service) reserve(ctx context.Context, tx *gorm.DB, items []inventory.ReservationRequest) (dbtypes.ReservationLines, error) {
	if len(items) == 0 {
		return nil, nil
	}
	results, err := s.inventory.ReserveAll(ctx, tx, items)
	if err != nil {
		return nil, err
	}
	lines := make(dbtypes.ReservationLines, 0, len(results))
	var unavailable []string
	for _, res := range results {
		if !res.Reserved {
			unavailable = append(unavailable, res.ItemID.String())
			continue
		}
		lines = append(lines, dbtypes.ReservationLine{ItemID: res.ItemID, Qty: res.Qty})
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{"unavailable_items": unavailable})
	}
	return lines, nil
}

func (s *Service) newTransaction(input InitiateInput, reserved dbtypes.ReservationLines) *models.Transaction {
	correlation := dbtypes.StringMap{}
	for k, v := range input.Correlation {
		correlation[k] = v
	}
	return &models.Transaction{
		ID:             uuid.New(),
		UserID:         input.UserID,
		Kind:           input.Kind,
		Amount:         input.Amount,
		BonusAmount:    input.BonusAmount,
		Currency:       input.Currency.String(),
		Method:         input.Method,
		State:          enums.TransactionStatePending,
		SubscriptionID: input.SubscriptionID,
		Correlation:    correlation,
		ReservedItems:  reserved,
		RefundedAmount: decimal.Zero,
	}
}

func (s *Service) createWithProvider(ctx context.Context, adapter providers.Adapter, txn *models.Transaction, input InitiateInput) (*providers.CreateResult, error) {
	returnURL := input.ReturnURL
	if returnURL == "" {
		returnURL = s.returnURL
	}
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	result, err := adapter.Create(callCtx, providers.CreateRequest{
		TransactionID: txn.ID,
		Amount:        txn.AmountToPay(),
		Currency:      enums.Currency(txn.Currency),
		Correlation:   txn.Correlation,
		ReturnURL:     returnURL,
		SourceToken:   input.SourceToken,
	})
	if err != nil {
		return nil, providerError(err, "create")
	}
	if result == nil || strings.TrimSpace(result.ExternalRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider returned no reference")
	}
	return result, nil
}

func (s *Service) attachProviderResult(ctx context.Context, txn *models.Transaction, result *providers.CreateResult) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var payload *string
		if result.Payload != "" {
			payload = &result.Payload
		} else if result.RedirectURL != "" {
			payload = &result.RedirectURL
		}
		err := s.transactions.WithTx(tx).AttachProviderResult(ctx, txn.ID, transactions.ProviderResult{
			ExternalRef: result.ExternalRef,
			Payload:     payload,
			ExpiresAt:   result.ExpiresAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach provider reference")
		}
		ref := result.ExternalRef
		txn.ExternalRef = &ref
		txn.ProviderPayload = payload
		txn.PaymentExpiresAt = result.ExpiresAt

		if result.Invoice == nil {
			return nil
		}
		invoice := &models.Invoice{
			TransactionID:  txn.ID,
			Number:         result.Invoice.Number,
			Amount:         txn.AmountToPay(),
			Currency:       txn.Currency,
			DueDate:        result.Invoice.DueDate,
			RoutingDetails: dbtypes.StringMap(result.Invoice.RoutingDetails),
			Status:         enums.InvoiceStatusPending,
		}
		if err := s.invoices.WithTx(tx).Create(ctx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
		}
		return nil
	})
}
