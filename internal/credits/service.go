package credits

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// SourceSettlement tags debits taken while settling a transaction.
const SourceSettlement = "settlement"

// SourceRefund tags credits restored by a refund.
const SourceRefund = "refund"

// Service validates and moves a user's bonus credit balance.
// Debit and Credit join the caller's database transaction when tx is non-nil.
type Service interface {
	Validate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, correlationRef string) error
	Credit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, source, correlationRef string) error
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo Repository
}

// NewService wires a credit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Validate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must not be negative")
	}
	if amount.IsZero() {
		return true, nil
	}
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(amount), nil
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, correlationRef string) error {
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "debit amount must not be negative")
	}
	if amount.IsZero() {
		return nil
	}
	repo := s.repo.WithTx(tx)

	ok, err := repo.Decrement(ctx, userID, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit bonus credit")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInsufficientCredit, "bonus credit balance too low").
			WithDetails(map[string]any{"requested": amount.StringFixed(2)})
	}

	entry := &models.CreditEntry{
		UserID:         userID,
		Type:           enums.CreditEntryDebit,
		Amount:         amount,
		Source:         SourceSettlement,
		CorrelationRef: correlationRef,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record credit debit")
	}
	return nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, source, correlationRef string) error {
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount must not be negative")
	}
	if amount.IsZero() {
		return nil
	}
	if source == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit source is required")
	}
	repo := s.repo.WithTx(tx)

	if err := repo.Increment(ctx, userID, amount); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit bonus balance")
	}
	entry := &models.CreditEntry{
		UserID:         userID,
		Type:           enums.CreditEntryCredit,
		Amount:         amount,
		Source:         source,
		CorrelationRef: correlationRef,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record credit entry")
	}
	return nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.repo.FindAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit account")
	}
	if account == nil {
		return decimal.Zero, nil
	}
	return account.Balance, nil
}
