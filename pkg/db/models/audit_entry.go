package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEntry is an append-only record of something the engine did.
type AuditEntry struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Actor      string          `gorm:"column:actor;not null"`
	Action     string          `gorm:"column:action;not null;index:idx_audit_action_created,priority:1"`
	EntityType string          `gorm:"column:entity_type;not null"`
	EntityID   string          `gorm:"column:entity_id;not null;index"`
	Payload    json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;index:idx_audit_action_created,priority:2"`
}

func (a *AuditEntry) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}
