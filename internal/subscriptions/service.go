package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/internal/audit"
	"github.com/angelmondragon/packfinderz-settlement/internal/settlement"
	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox/payloads"
)

// Correlation keys written on subscription transactions.
const (
	CorrelationPlanID         = "plan_id"
	CorrelationSubscriptionID = "subscription_id"
	CorrelationRenewalKey     = "renewal_key"
	CorrelationCardOnFile     = "card_on_file"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentInitiator interface {
	Initiate(ctx context.Context, input settlement.InitiateInput) (*settlement.InitiateResult, error)
}

type pendingRenewals interface {
	HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error)
}

type accessGranter interface {
	Grant(ctx context.Context, tx *gorm.DB, userID, subscriptionID uuid.UUID) error
	Revoke(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID) (int64, error)
}

type auditLog interface {
	audit.Appender
	ListByActionSince(ctx context.Context, action string, since time.Time) ([]models.AuditEntry, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RenewalSummary counts the outcome of one renewal pass.
type RenewalSummary struct {
	Successful int
	Failed     int
	Skipped    int
}

// PurchaseInput starts a new subscription on a plan.
type PurchaseInput struct {
	UserID      uuid.UUID
	PlanID      uuid.UUID
	Method      enums.PaymentMethod
	BonusAmount decimal.Decimal
	SourceToken string
	CardOnFile  string
	ReturnURL   string
}

// ServiceParams wires the subscription service.
type ServiceParams struct {
	TxRunner     txRunner
	Repo         Repository
	Transactions pendingRenewals
	Payments     paymentInitiator
	Access       accessGranter
	Audit        auditLog
	Outbox       eventEmitter
	Config       config.RenewalConfig
	Logger       *logger.Logger
	Now          func() time.Time
}

// Service runs the subscription lifecycle: purchase, renewal passes, cancel, and the expiry sweep.
type Service struct {
	tx           txRunner
	repo         Repository
	transactions pendingRenewals
	payments     paymentInitiator
	access       accessGranter
	audit        auditLog
	outbox       eventEmitter
	cfg          config.RenewalConfig
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("subscription repo required")
	case params.Transactions == nil:
		return nil, fmt.Errorf("transaction repo required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment initiator required")
	case params.Access == nil:
		return nil, fmt.Errorf("access service required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 72 * time.Hour
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 72 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		tx:           params.TxRunner,
		repo:         params.Repo,
		transactions: params.Transactions,
		payments:     params.Payments,
		access:       params.Access,
		audit:        params.Audit,
		outbox:       params.Outbox,
		cfg:          cfg,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// Purchase opens a subscription_purchase transaction. The subscription itself is
// activated by RenewalHook once the payment settles.
func (s *Service) Purchase(ctx context.Context, input PurchaseInput) (*settlement.InitiateResult, error) {
	if input.UserID == uuid.Nil || input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and plan id are required")
	}
	plan, err := s.repo.FindPlan(ctx, input.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if !plan.Status.Purchasable() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "plan is not available")
	}

	correlation := map[string]string{CorrelationPlanID: plan.ID.String()}
	if ref := strings.TrimSpace(input.CardOnFile); ref != "" {
		correlation[CorrelationCardOnFile] = ref
	}
	return s.payments.Initiate(ctx, settlement.InitiateInput{
		UserID:      input.UserID,
		Kind:        enums.TransactionKindSubscriptionPurchase,
		Amount:      plan.PriceAmount,
		BonusAmount: input.BonusAmount,
		Currency:    enums.Currency(plan.CurrencyCode),
		Method:      input.Method,
		Correlation: correlation,
		SourceToken: input.SourceToken,
		ReturnURL:   input.ReturnURL,
	})
}

// ProcessRenewals initiates a renewal payment for every active auto-renewing subscription
// that expires within the lookahead window.
func (s *Service) ProcessRenewals(ctx context.Context) (RenewalSummary, error) {
	now := s.now().UTC()
	attempts, err := s.recentAttempts(ctx, now)
	if err != nil {
		return RenewalSummary{}, err
	}
	cutoff := now.Add(s.cfg.Lookahead)
	limit := s.cfg.BatchSize

	// Skipped rows stay due, so the pass walks every page rather than re-reading the head.
	var (
		summary RenewalSummary
		seen    int
		cursor  *RenewalCursor
	)
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		page, err := s.repo.ListDueForRenewal(ctx, cutoff, cursor, limit)
		if err != nil {
			return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions due for renewal")
		}
		for i := range page {
			sub := &page[i]
			if attempts[sub.ID] >= s.cfg.MaxAttempts {
				summary.Skipped++
				continue
			}
			s.renewOne(ctx, sub, &summary)
		}
		seen += len(page)
		if len(page) < limit {
			break
		}
		cursor = CursorOf(page[len(page)-1])
	}
	s.logg.Info(s.logg.WithFields(ctx, summaryFields(summary, seen)), "renewal pass finished")
	return summary, nil
}

// RetryFailedRenewals re-attempts subscriptions with recorded renewal failures in the trailing
// window, stopping for good once a subscription reached the attempt limit.
func (s *Service) RetryFailedRenewals(ctx context.Context) (RenewalSummary, error) {
	now := s.now().UTC()
	attempts, err := s.recentAttempts(ctx, now)
	if err != nil {
		return RenewalSummary{}, err
	}

	var summary RenewalSummary
	cutoff := now.Add(s.cfg.Lookahead)
	for subID, count := range attempts {
		if count >= s.cfg.MaxAttempts {
			summary.Skipped++
			continue
		}
		sub, err := s.repo.FindByID(ctx, subID)
		if err != nil {
			return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		// renewed since the failure, cancelled, or gone
		if sub == nil || sub.Status != enums.SubscriptionStatusActive || !sub.AutoRenew || sub.ExpiresAt.After(cutoff) {
			continue
		}
		s.renewOne(ctx, sub, &summary)
	}
	s.logg.Info(s.logg.WithFields(ctx, summaryFields(summary, len(attempts))), "renewal retry pass finished")
	return summary, nil
}

func (s *Service) renewOne(ctx context.Context, sub *models.Subscription, summary *RenewalSummary) {
	ctx = s.logg.WithFields(s.logg.WithUserID(ctx, sub.UserID.String()), map[string]any{
		"subscription_id": sub.ID.String(),
	})

	pending, err := s.transactions.HasPendingRenewal(ctx, sub.ID)
	if err != nil {
		s.logg.Error(ctx, "pending renewal check failed", err)
		summary.Failed++
		return
	}
	if pending {
		summary.Skipped++
		return
	}

	if err := s.initiateRenewal(ctx, sub); err != nil {
		summary.Failed++
		ctx = s.logg.WithFields(ctx, map[string]any{
			"error_code": string(pkgerrors.As(err).Code()),
			"retryable":  pkgerrors.IsRetryable(err),
		})
		s.logg.Warn(ctx, "renewal initiation failed: "+err.Error())
		if recErr := s.recordFailure(ctx, nil, sub, err.Error(), nil); recErr != nil {
			s.logg.Error(ctx, "record renewal failure", recErr)
		}
		return
	}
	summary.Successful++
}

func (s *Service) initiateRenewal(ctx context.Context, sub *models.Subscription) error {
	plan, err := s.repo.FindPlan(ctx, sub.PlanID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	method := sub.Method
	if !method.IsValid() {
		method = enums.PaymentMethod(s.cfg.DefaultMethod)
	}
	var source string
	if sub.SourceRef != nil {
		source = *sub.SourceRef
	}
	subID := sub.ID
	_, err = s.payments.Initiate(ctx, settlement.InitiateInput{
		UserID:   sub.UserID,
		Kind:     enums.TransactionKindRenewal,
		Amount:   plan.PriceAmount,
		Currency: enums.Currency(plan.CurrencyCode),
		Method:   method,
		Correlation: map[string]string{
			CorrelationSubscriptionID: sub.ID.String(),
			CorrelationRenewalKey:     RenewalKey(sub),
		},
		SubscriptionID: &subID,
		SourceToken:    source,
	})
	return err
}

// RenewalKey identifies one billing period of a subscription.
func RenewalKey(sub *models.Subscription) string {
	return fmt.Sprintf("renewal:%s:%s", sub.ID, sub.ExpiresAt.UTC().Format(time.RFC3339))
}

func (s *Service) recordFailure(ctx context.Context, tx *gorm.DB, sub *models.Subscription, reason string, txnID *uuid.UUID) error {
	payload := map[string]any{
		"subscription_id": sub.ID.String(),
		"period_end":      sub.ExpiresAt.UTC().Format(time.RFC3339),
		"reason":          reason,
	}
	if txnID != nil {
		payload["transaction_id"] = txnID.String()
	}
	return s.audit.Append(ctx, tx, audit.Entry{
		Actor:      audit.ActorSystem,
		Action:     audit.ActionRenewalFailed,
		EntityType: audit.EntitySubscription,
		EntityID:   sub.ID.String(),
		Payload:    payload,
	})
}

func (s *Service) recentAttempts(ctx context.Context, now time.Time) (map[uuid.UUID]int, error) {
	entries, err := s.audit.ListByActionSince(ctx, audit.ActionRenewalFailed, now.Add(-s.cfg.RetryWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list renewal failures")
	}
	return countAttempts(entries), nil
}

// countAttempts folds renewal failure entries into attempts per subscription.
func countAttempts(entries []models.AuditEntry) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, entry := range entries {
		if entry.Action != audit.ActionRenewalFailed || entry.EntityType != audit.EntitySubscription {
			continue
		}
		id, err := uuid.Parse(entry.EntityID)
		if err != nil {
			continue
		}
		counts[id]++
	}
	return counts
}

// Cancel stops auto-renew. Access stays open until the expiry sweep closes the window.
func (s *Service) Cancel(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another user")
	}
	now := s.now().UTC()
	ok, err := s.repo.Cancel(ctx, sub.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only active subscriptions can be cancelled").
			WithDetails(map[string]any{"status": string(sub.Status)})
	}
	sub.Status = enums.SubscriptionStatusCancelled
	sub.AutoRenew = false
	sub.CancelledAt = &now
	s.logg.Info(s.logg.WithField(s.logg.WithUserID(ctx, userID.String()), "subscription_id", sub.ID.String()), "subscription cancelled")
	return sub, nil
}

// ProcessExpired moves every live subscription past its window to EXPIRED and revokes the
// access derived from it, one batch per database transaction.
func (s *Service) ProcessExpired(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := s.expireBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.cfg.BatchSize {
			break
		}
	}
	if total > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired", total), "expiry sweep finished")
	}
	return total, nil
}

func (s *Service) expireBatch(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expired := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		lapsed, err := repo.ListLapsed(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lapsed subscriptions")
		}
		if len(lapsed) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(lapsed))
		for _, sub := range lapsed {
			ids = append(ids, sub.ID)
		}
		if _, err := repo.MarkExpired(ctx, ids, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire subscriptions")
		}

		for _, sub := range lapsed {
			revoked, err := s.access.Revoke(ctx, tx, sub.ID)
			if err != nil {
				return err
			}
			if err := s.audit.Append(ctx, tx, audit.Entry{
				Actor:      audit.ActorSystem,
				Action:     audit.ActionSubscriptionExpired,
				EntityType: audit.EntitySubscription,
				EntityID:   sub.ID.String(),
				Payload:    map[string]any{"expires_at": sub.ExpiresAt, "revoked_grants": revoked},
			}); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSubscriptionExpired,
				AggregateType: enums.AggregateSubscription,
				AggregateID:   sub.ID,
				Actor:         outbox.System(sub.UserID),
				Data: payloads.SubscriptionExpiredEvent{
					SubscriptionID: sub.ID,
					UserID:         sub.UserID,
					ExpiredAt:      now,
					RevokedGrants:  revoked,
				},
				Version:    1,
				OccurredAt: now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit expiry event")
			}
		}
		expired = len(lapsed)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

func summaryFields(summary RenewalSummary, scanned int) map[string]any {
	return map[string]any{
		"scanned":    scanned,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
	}
}
