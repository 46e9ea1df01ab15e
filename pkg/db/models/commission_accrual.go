package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionAccrual is the partner commission owed on a settled transaction.
type CommissionAccrual struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID       `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	SettledAmount decimal.Decimal `gorm:"column:settled_amount;type:numeric(12,2);not null"`
	Rate          decimal.Decimal `gorm:"column:rate;type:numeric(6,4);not null"`
	Commission    decimal.Decimal `gorm:"column:commission;type:numeric(12,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (c *CommissionAccrual) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
