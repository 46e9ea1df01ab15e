package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// Actions written by the settlement engine.
const (
	ActionTransactionSettled  = "transaction_settled"
	ActionTransactionRefunded = "transaction_refunded"
	ActionRenewalFailed       = "renewal_failed"
	ActionSubscriptionExpired = "subscription_expired"
	ActionWebhookRejected     = "webhook_rejected"
	ActionRefundUnrecorded    = "refund_unrecorded"
)

// Entity types referenced by audit entries.
const (
	EntityTransaction  = "transaction"
	EntitySubscription = "subscription"
	EntityWebhook      = "webhook"
)

// ActorSystem marks entries written by background jobs and webhooks.
const ActorSystem = "system"

// Entry is the input for Append.
type Entry struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Payload    any
}

// Appender writes audit entries, joining tx when given.
type Appender interface {
	Append(ctx context.Context, tx *gorm.DB, entry Entry) error
}

// Service is the gorm-backed audit log.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService builds the audit log service.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Service{db: db, now: time.Now}, nil
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if entry.Action == "" || entry.EntityType == "" || entry.EntityID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit action and entity are required")
	}
	if entry.Actor == "" {
		entry.Actor = ActorSystem
	}
	var payload json.RawMessage
	if entry.Payload != nil {
		raw, err := json.Marshal(entry.Payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode audit payload")
		}
		payload = raw
	}
	if tx == nil {
		tx = s.db
	}
	record := &models.AuditEntry{
		Actor:      entry.Actor,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Payload:    payload,
		CreatedAt:  s.now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append audit entry")
	}
	return nil
}

// ListByActionSince returns entries for action created at or after since, oldest first.
func (s *Service) ListByActionSince(ctx context.Context, action string, since time.Time) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	if err := s.db.WithContext(ctx).
		Where("action = ? AND created_at >= ?", action, since.UTC()).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}
	return entries, nil
}
