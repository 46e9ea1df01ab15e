package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox/payloads"
)

// RenewalHook applies settled subscription payments to subscriptions. It runs inside the
// settlement transaction, so a failure here rolls the settlement back.
type RenewalHook struct {
	svc *Service
}

// RenewalHook returns the settlement hook bound to this service.
func (s *Service) RenewalHook() *RenewalHook {
	return &RenewalHook{svc: s}
}

func (h *RenewalHook) OnSettled(ctx context.Context, tx *gorm.DB, txn *models.Transaction, outcome enums.SettlementOutcome) error {
	switch txn.Kind {
	case enums.TransactionKindRenewal:
		return h.onRenewal(ctx, tx, txn, outcome)
	case enums.TransactionKindSubscriptionPurchase:
		if outcome != enums.SettlementOutcomeSucceeded {
			return nil
		}
		return h.activate(ctx, tx, txn)
	default:
		return nil
	}
}

func (h *RenewalHook) onRenewal(ctx context.Context, tx *gorm.DB, txn *models.Transaction, outcome enums.SettlementOutcome) error {
	if txn.SubscriptionID == nil {
		return nil
	}
	s := h.svc
	repo := s.repo.WithTx(tx)
	sub, err := repo.FindByID(ctx, *txn.SubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		s.logg.Warn(s.logg.WithTransactionID(ctx, txn.ID.String()), "renewal settled for unknown subscription")
		return nil
	}

	if outcome != enums.SettlementOutcomeSucceeded {
		return s.recordFailure(ctx, tx, sub, "payment "+string(outcome), &txn.ID)
	}

	plan, err := repo.FindPlan(ctx, sub.PlanID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	now := s.now().UTC()
	from := sub.ExpiresAt
	lapsed := sub.Status == enums.SubscriptionStatusExpired
	if lapsed || from.Before(now) {
		from = now
	}
	expiresAt := plan.Interval.Extend(from)
	if err := repo.ExtendExpiry(ctx, sub.ID, expiresAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend subscription")
	}
	if lapsed {
		if err := s.access.Grant(ctx, tx, sub.UserID, sub.ID); err != nil {
			return err
		}
	}
	return h.emitRenewed(ctx, tx, sub, txn, expiresAt, false, now)
}

func (h *RenewalHook) activate(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	s := h.svc
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
	planID, err := uuid.Parse(txn.Correlation[CorrelationPlanID])
	if err != nil {
		s.logg.Warn(ctx, "subscription purchase settled without a plan reference")
		return nil
	}
	repo := s.repo.WithTx(tx)
	plan, err := repo.FindPlan(ctx, planID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		UserID:    txn.UserID,
		PlanID:    plan.ID,
		Status:    enums.SubscriptionStatusActive,
		StartedAt: now,
		ExpiresAt: plan.Interval.Extend(now),
		AutoRenew: true,
		Method:    txn.Method,
	}
	if ref := txn.Correlation[CorrelationCardOnFile]; ref != "" {
		sub.SourceRef = &ref
	}
	if err := repo.Create(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	if err := tx.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Update("subscription_id", sub.ID).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link subscription")
	}
	txn.SubscriptionID = &sub.ID

	if err := s.access.Grant(ctx, tx, sub.UserID, sub.ID); err != nil {
		return err
	}
	return h.emitRenewed(ctx, tx, sub, txn, sub.ExpiresAt, true, now)
}

func (h *RenewalHook) emitRenewed(ctx context.Context, tx *gorm.DB, sub *models.Subscription, txn *models.Transaction, expiresAt time.Time, activated bool, now time.Time) error {
	err := h.svc.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionRenewed,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         outbox.System(sub.UserID),
		Data: payloads.SubscriptionRenewedEvent{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			TransactionID:  txn.ID,
			ExpiresAt:      expiresAt,
			Activated:      activated,
		},
		Version:    1,
		OccurredAt: now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit renewal event")
	}
	return nil
}
