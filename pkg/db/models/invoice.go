package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/packfinderz-settlement/pkg/db/types"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

// Invoice is the bank-transfer artifact linked 1:1 to a transaction.
type Invoice struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID  uuid.UUID           `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex"`
	Number         string              `gorm:"column:number;not null;uniqueIndex"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       string              `gorm:"column:currency;not null"`
	DueDate        time.Time           `gorm:"column:due_date;not null"`
	RoutingDetails dbtypes.StringMap   `gorm:"column:routing_details;type:jsonb"`
	Status         enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null"`
	PaidAt         *time.Time          `gorm:"column:paid_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
