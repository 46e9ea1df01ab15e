package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

// Subscription is a user's entitlement window on a billing plan.
type Subscription struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID      uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	Status      enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null"`
	StartedAt   time.Time                `gorm:"column:started_at;not null"`
	ExpiresAt   time.Time                `gorm:"column:expires_at;not null;index"`
	AutoRenew   bool                     `gorm:"column:auto_renew;not null"`
	Method      enums.PaymentMethod      `gorm:"column:method;type:payment_method;not null"`
	SourceRef   *string                  `gorm:"column:source_ref"`
	CancelledAt *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
