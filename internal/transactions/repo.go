package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/packfinderz-settlement/pkg/db"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// ProviderResult is what gets attached to a pending transaction after the provider accepted it.
type ProviderResult struct {
	ExternalRef string
	Payload     *string
	ExpiresAt   *time.Time
}

// RefundUpdate captures the columns written when a completed transaction is refunded.
type RefundUpdate struct {
	State     enums.TransactionState
	Amount    decimal.Decimal
	RefundRef *string
	Reason    *string
	At        time.Time
}

// Repository persists transactions and guards their state transitions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByExternalRef(ctx context.Context, externalRef string) (*models.Transaction, error)
	AttachProviderResult(ctx context.Context, id uuid.UUID, result ProviderResult) error
	TransitionFromPending(ctx context.Context, id uuid.UUID, next enums.TransactionState, at time.Time) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, update RefundUpdate) (bool, error)
	HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByExternalRef(ctx context.Context, externalRef string) (*models.Transaction, error) {
	if externalRef == "" {
		return nil, nil
	}
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("external_ref = ?", externalRef).First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) AttachProviderResult(ctx context.Context, id uuid.UUID, result ProviderResult) error {
	updates := map[string]any{
		"external_ref":       result.ExternalRef,
		"provider_payload":   result.Payload,
		"payment_expires_at": result.ExpiresAt,
	}
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
	if dbpkg.IsUniqueViolation(err, "ux_transactions_external_ref") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "provider reference already bound to another transaction")
	}
	return err
}

// TransitionFromPending moves a pending transaction to next. It reports false when the row
// was no longer pending, which makes repeated settlement a no-op.
func (r *repository) TransitionFromPending(ctx context.Context, id uuid.UUID, next enums.TransactionState, at time.Time) (bool, error) {
	updates := map[string]any{
		"state":      next,
		"updated_at": at,
	}
	if next == enums.TransactionStateCompleted {
		updates["completed_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND state = ?", id, enums.TransactionStatePending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, update RefundUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND state = ?", id, enums.TransactionStateCompleted).
		Updates(map[string]any{
			"state":           update.State,
			"refunded_amount": update.Amount,
			"refund_ref":      update.RefundRef,
			"refund_reason":   update.Reason,
			"refunded_at":     update.At,
			"updated_at":      update.At,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("subscription_id = ? AND kind = ? AND state = ?", subscriptionID, enums.TransactionKindRenewal, enums.TransactionStatePending).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
