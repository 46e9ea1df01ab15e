package commissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// Accruer records partner commission for a settled transaction.
type Accruer interface {
	Accrue(ctx context.Context, tx *gorm.DB, transactionID, userID uuid.UUID, settledAmount decimal.Decimal) error
}

// Service persists one accrual row per transaction at a fixed rate.
type Service struct {
	db   *gorm.DB
	rate decimal.Decimal
}

// NewService builds a commission accruer using rate (0..1).
func NewService(db *gorm.DB, rate decimal.Decimal) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate %s out of range", rate)
	}
	return &Service{db: db, rate: rate}, nil
}

// Accrue writes the accrual in tx. A second accrual for the same transaction is ignored.
func (s *Service) Accrue(ctx context.Context, tx *gorm.DB, transactionID, userID uuid.UUID, settledAmount decimal.Decimal) error {
	if transactionID == uuid.Nil || userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction and user ids are required")
	}
	if tx == nil {
		tx = s.db
	}
	accrual := &models.CommissionAccrual{
		TransactionID: transactionID,
		UserID:        userID,
		SettledAmount: settledAmount,
		Rate:          s.rate,
		Commission:    settledAmount.Mul(s.rate).Round(2),
	}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_id"}}, DoNothing: true}).
		Create(accrual).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accrue commission")
	}
	return nil
}
