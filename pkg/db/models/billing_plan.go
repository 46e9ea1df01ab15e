package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

// BillingPlan prices a subscription and defines how long one paid period lasts.
type BillingPlan struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Name         string                `gorm:"column:name;not null"`
	Status       enums.PlanStatus      `gorm:"column:status;type:plan_status;not null"`
	Interval     enums.BillingInterval `gorm:"column:interval;type:billing_interval;not null"`
	PriceAmount  decimal.Decimal       `gorm:"column:price_amount;type:numeric(12,2);not null"`
	CurrencyCode string                `gorm:"column:currency_code;not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *BillingPlan) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
