package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContentAccessGrant entitles a user to gated content while a subscription is live.
type ContentAccessGrant struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID uuid.UUID  `gorm:"column:subscription_id;type:uuid;not null;index"`
	RevokedAt      *time.Time `gorm:"column:revoked_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (g *ContentAccessGrant) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
