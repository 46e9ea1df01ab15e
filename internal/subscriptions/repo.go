package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

// Repository persists subscriptions and reads the plans they bill against.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindPlan(ctx context.Context, planID uuid.UUID) (*models.BillingPlan, error)
	ListDueForRenewal(ctx context.Context, before time.Time, after *RenewalCursor, limit int) ([]models.Subscription, error)
	ListLapsed(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	MarkExpired(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error)
	ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// RenewalCursor is the (expires_at, id) position of the last row of a renewal page.
type RenewalCursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

// CursorOf positions the next page after sub.
func CursorOf(sub models.Subscription) *RenewalCursor {
	return &RenewalCursor{ExpiresAt: sub.ExpiresAt, ID: sub.ID}
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a subscription repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindPlan(ctx context.Context, planID uuid.UUID) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).Where("id = ?", planID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// ListDueForRenewal returns one page of active auto-renewing subscriptions whose window
// closes before the cutoff, keyset-ordered by (expires_at, id) and starting after the cursor.
func (r *repository) ListDueForRenewal(ctx context.Context, before time.Time, after *RenewalCursor, limit int) ([]models.Subscription, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND auto_renew = ? AND expires_at <= ?", enums.SubscriptionStatusActive, true, before)
	if after != nil {
		q = q.Where("(expires_at > ? OR (expires_at = ? AND id > ?))", after.ExpiresAt, after.ExpiresAt, after.ID)
	}
	var subs []models.Subscription
	err := q.Order("expires_at ASC").Order("id ASC").Limit(limit).Find(&subs).Error
	return subs, err
}

// ListLapsed returns live subscriptions whose window already closed. Cancelled subscriptions
// keep access until their window ends, so they lapse here too.
func (r *repository) ListLapsed(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", enums.EntitledSubscriptionStatuses(), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *repository) MarkExpired(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id IN ? AND status IN ? AND expires_at < ?", ids, enums.EntitledSubscriptionStatuses(), now).
		Update("status", enums.SubscriptionStatusExpired)
	return res.RowsAffected, res.Error
}

// ExtendExpiry moves the window end and reopens a subscription that already lapsed.
func (r *repository) ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"expires_at": expiresAt,
			"status":     gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", enums.SubscriptionStatusExpired, enums.SubscriptionStatusActive),
		}).Error
}

func (r *repository) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, enums.SubscriptionStatusActive).
		Updates(map[string]any{
			"status":       enums.SubscriptionStatusCancelled,
			"auto_renew":   false,
			"cancelled_at": at,
		})
	return res.RowsAffected == 1, res.Error
}
