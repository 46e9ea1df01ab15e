package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/packfinderz-settlement/pkg/db/types"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

// Transaction is the authoritative record of a monetary or blended payment.
type Transaction struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Kind             enums.TransactionKind    `gorm:"column:kind;type:transaction_kind;not null"`
	Amount           decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null"`
	BonusAmount      decimal.Decimal          `gorm:"column:bonus_amount;type:numeric(12,2);not null"`
	Currency         string                   `gorm:"column:currency;not null"`
	Method           enums.PaymentMethod      `gorm:"column:method;type:payment_method;not null"`
	State            enums.TransactionState   `gorm:"column:state;type:transaction_state;not null;index"`
	SubscriptionID   *uuid.UUID               `gorm:"column:subscription_id;type:uuid;index"`
	Correlation      dbtypes.StringMap        `gorm:"column:correlation;type:jsonb"`
	ReservedItems    dbtypes.ReservationLines `gorm:"column:reserved_items;type:jsonb"`
	ExternalRef      *string                  `gorm:"column:external_ref;uniqueIndex"`
	ProviderPayload  *string                  `gorm:"column:provider_payload"`
	PaymentExpiresAt *time.Time               `gorm:"column:payment_expires_at"`
	RefundedAmount   decimal.Decimal          `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	RefundRef        *string                  `gorm:"column:refund_ref"`
	RefundReason     *string                  `gorm:"column:refund_reason"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt      *time.Time               `gorm:"column:completed_at"`
	RefundedAt       *time.Time               `gorm:"column:refunded_at"`
}

// BeforeCreate assigns the primary key when the caller did not.
func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// AmountToPay is the share of the transaction collected by an external provider.
func (t Transaction) AmountToPay() decimal.Decimal {
	return t.Amount.Sub(t.BonusAmount)
}
