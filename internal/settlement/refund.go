package settlement

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/internal/audit"
	"github.com/angelmondragon/packfinderz-settlement/internal/credits"
	"github.com/angelmondragon/packfinderz-settlement/internal/providers"
	"github.com/angelmondragon/packfinderz-settlement/internal/transactions"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox/payloads"
)

// RefundInput requests a refund. A nil Amount refunds the full settled amount.
type RefundInput struct {
	UserID        uuid.UUID
	TransactionID uuid.UUID
	Amount        *decimal.Decimal
	Reason        string
}

// Refund returns money and bonus credit for a completed transaction owned by the caller.
func (s *Service) Refund(ctx context.Context, input RefundInput) (*models.Transaction, error) {
	txn, err := s.Get(ctx, input.UserID, input.TransactionID)
	if err != nil {
		return nil, err
	}
	ctx = s.logCtx(ctx, txn)
	if txn.State != enums.TransactionStateCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed transactions can be refunded").
			WithDetails(map[string]any{"state": string(txn.State)})
	}

	amount := txn.Amount
	if input.Amount != nil {
		amount = *input.Amount
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be greater than zero")
	}
	if amount.GreaterThan(txn.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds settled amount").
			WithDetails(map[string]any{"settled_amount": txn.Amount.StringFixed(2)})
	}

	split := splitRefund(txn, amount)
	// The provider refund runs before the DB unit. A failed unit leaves money returned on a
	// COMPLETED row; retrying is safe because the provider key is refund-<transaction id>
	// and a retry carries the same amount, so the provider returns the original refund.
	refundRef, err := s.refundWithProvider(ctx, txn, split.provider, input.Reason)
	if err != nil {
		s.metrics.IncProviderError(string(txn.Method), "refund")
		s.logg.Error(ctx, "provider refund failed", err)
		return nil, err
	}

	now := s.utcNow()
	var reason *string
	if trimmed := strings.TrimSpace(input.Reason); trimmed != "" {
		reason = &trimmed
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.transactions.WithTx(tx).MarkRefunded(ctx, txn.ID, transactions.RefundUpdate{
			State:     split.state,
			Amount:    amount,
			RefundRef: refundRef,
			Reason:    reason,
			At:        now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark transaction refunded")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction was refunded concurrently")
		}
		if err := s.credits.Credit(ctx, tx, txn.UserID, split.bonus, credits.SourceRefund, txn.ID.String()); err != nil {
			return err
		}
		if err := s.audit.Append(ctx, tx, audit.Entry{
			Actor:      input.UserID.String(),
			Action:     audit.ActionTransactionRefunded,
			EntityType: audit.EntityTransaction,
			EntityID:   txn.ID.String(),
			Payload: map[string]any{
				"state":          split.state,
				"amount":         amount.StringFixed(2),
				"provider_share": split.provider.StringFixed(2),
				"bonus_restored": split.bonus.StringFixed(2),
				"reason":         input.Reason,
			},
		}); err != nil {
			return err
		}

		event := payloads.TransactionRefundedEvent{
			TransactionID:  txn.ID,
			UserID:         txn.UserID,
			State:          split.state,
			RefundedAmount: amount.StringFixed(2),
			BonusRestored:  split.bonus.StringFixed(2),
			Currency:       txn.Currency,
			Reason:         input.Reason,
			RefundedAt:     now,
		}
		if refundRef != nil {
			event.RefundRef = *refundRef
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionRefunded,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Actor:         outbox.Owner(input.UserID),
			Data:          event,
			Version:       1,
			OccurredAt:    now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit refund event")
		}
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "refund rolled back", err)
		if refundRef != nil {
			s.recordUnrecordedRefund(ctx, txn, amount, *refundRef, err)
		}
		return nil, err
	}

	s.metrics.IncRefund(string(split.state))
	s.logg.Info(s.logg.WithField(ctx, "state", string(split.state)), "transaction refunded")

	refunded, err := s.transactions.FindByID(ctx, txn.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
	}
	return refunded, nil
}

// recordUnrecordedRefund leaves a reconciliation trail for a provider refund whose DB unit
// rolled back.
func (s *Service) recordUnrecordedRefund(ctx context.Context, txn *models.Transaction, amount decimal.Decimal, refundRef string, cause error) {
	err := s.audit.Append(ctx, nil, audit.Entry{
		Actor:      audit.ActorSystem,
		Action:     audit.ActionRefundUnrecorded,
		EntityType: audit.EntityTransaction,
		EntityID:   txn.ID.String(),
		Payload: map[string]any{
			"refund_ref": refundRef,
			"amount":     amount.StringFixed(2),
			"method":     string(txn.Method),
			"error":      cause.Error(),
		},
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "refund_ref", refundRef), "failed to record unrecorded provider refund", err)
	}
}

type refundSplit struct {
	state    enums.TransactionState
	bonus    decimal.Decimal
	provider decimal.Decimal
}

// splitRefund divides a refund between restored bonus credit and money returned by the
// provider, in the same proportion the transaction was paid.
func splitRefund(txn *models.Transaction, amount decimal.Decimal) refundSplit {
	if amount.Equal(txn.Amount) {
		return refundSplit{
			state:    enums.TransactionStateRefunded,
			bonus:    txn.BonusAmount,
			provider: txn.AmountToPay(),
		}
	}
	bonus := txn.BonusAmount.Mul(amount).Div(txn.Amount).Round(2)
	return refundSplit{
		state:    enums.TransactionStatePartiallyRefunded,
		bonus:    bonus,
		provider: amount.Sub(bonus),
	}
}

func (s *Service) refundWithProvider(ctx context.Context, txn *models.Transaction, amount decimal.Decimal, reason string) (*string, error) {
	if !amount.IsPositive() || txn.ExternalRef == nil {
		return nil, nil
	}
	adapter, err := s.providers.Resolve(txn.Method)
	if err != nil {
		return nil, err
	}
	if !adapter.SupportsRefund() {
		s.logg.Info(ctx, "provider has no refund api; money is returned out of band")
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	ref, err := adapter.Refund(callCtx, providers.RefundRequest{
		TransactionID: txn.ID,
		ExternalRef:   *txn.ExternalRef,
		Amount:        amount,
		Currency:      enums.Currency(txn.Currency),
		Reason:        reason,
	})
	if err != nil {
		return nil, providerError(err, "refund")
	}
	return &ref, nil
}
