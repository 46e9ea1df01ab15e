package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// Service grants and revokes content access derived from subscriptions.
type Service struct {
	db *gorm.DB
}

// NewService builds the content access service.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Service{db: db}, nil
}

// Grant opens access for the subscription owner.
func (s *Service) Grant(ctx context.Context, tx *gorm.DB, userID, subscriptionID uuid.UUID) error {
	if tx == nil {
		tx = s.db
	}
	grant := &models.ContentAccessGrant{UserID: userID, SubscriptionID: subscriptionID}
	if err := tx.WithContext(ctx).Create(grant).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant content access")
	}
	return nil
}

// Revoke closes every open grant derived from subscriptionID and returns how many were closed.
func (s *Service) Revoke(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	res := tx.WithContext(ctx).
		Model(&models.ContentAccessGrant{}).
		Where("subscription_id = ? AND revoked_at IS NULL", subscriptionID).
		Update("revoked_at", time.Now().UTC())
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "revoke content access")
	}
	return res.RowsAffected, nil
}

// HasAccess reports whether the user holds any open grant.
func (s *Service) HasAccess(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.ContentAccessGrant{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check content access")
	}
	return count > 0, nil
}
