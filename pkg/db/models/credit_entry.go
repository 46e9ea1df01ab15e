package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

// CreditEntry records an immutable movement of bonus credit.
type CreditEntry struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Type           enums.CreditEntryType `gorm:"column:type;type:credit_entry_type;not null"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Source         string                `gorm:"column:source;not null"`
	CorrelationRef string                `gorm:"column:correlation_ref;not null;index"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *CreditEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
