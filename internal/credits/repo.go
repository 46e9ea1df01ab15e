package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
)

// Repository manages bonus credit balances and their entry history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindAccount(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error)
	Decrement(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
	Increment(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
	CreateEntry(ctx context.Context, entry *models.CreditEntry) error
	ListEntries(ctx context.Context, correlationRef string) ([]models.CreditEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindAccount(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error) {
	var account models.CreditAccount
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Decrement lowers the balance only when it covers amount.
func (r *repository) Decrement(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CreditAccount{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Increment adds amount, opening the account on first use.
func (r *repository) Increment(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	account := &models.CreditAccount{UserID: userID, Balance: amount}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance":    gorm.Expr("credit_accounts.balance + ?", amount),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(account).Error
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.CreditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListEntries(ctx context.Context, correlationRef string) ([]models.CreditEntry, error) {
	var entries []models.CreditEntry
	if err := r.db.WithContext(ctx).
		Where("correlation_ref = ?", correlationRef).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
