package settlement

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/internal/audit"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox/payloads"
)

// ActorAdmin marks settlements confirmed by an operator.
const ActorAdmin = "admin"

// Settle applies a provider outcome to the transaction holding externalRef.
// Unknown references and already settled transactions are silent no-ops.
func (s *Service) Settle(ctx context.Context, externalRef string, outcome enums.SettlementOutcome) error {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	if !outcome.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid settlement outcome")
	}
	ctx = s.logg.WithField(ctx, "external_ref", externalRef)

	return s.settle(ctx, outcome, "", func(tx *gorm.DB) (*models.Transaction, error) {
		return s.transactions.WithTx(tx).FindByExternalRef(ctx, externalRef)
	})
}

// CompleteByID confirms a pending transaction by id, for operator-verified payments such
// as bank transfers. It shares Settle's idempotency and atomicity.
func (s *Service) CompleteByID(ctx context.Context, transactionID uuid.UUID) error {
	if transactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	ctx = s.logg.WithTransactionID(ctx, transactionID.String())

	var found bool
	err := s.settle(ctx, enums.SettlementOutcomeSucceeded, ActorAdmin, func(tx *gorm.DB) (*models.Transaction, error) {
		txn, err := s.transactions.WithTx(tx).FindByID(ctx, transactionID)
		found = txn != nil
		return txn, err
	})
	if err != nil {
		return err
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return nil
}

func (s *Service) settle(ctx context.Context, outcome enums.SettlementOutcome, actor string, load func(tx *gorm.DB) (*models.Transaction, error)) error {
	var (
		txn     *models.Transaction
		applied bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = load(tx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}
		if txn == nil || txn.State != enums.TransactionStatePending {
			return nil
		}
		if actor == "" {
			actor = actorFor(txn)
		}
		applied, err = s.applySettlement(ctx, tx, txn, outcome, actor)
		return err
	})
	if err != nil {
		if txn != nil {
			ctx = s.logCtx(ctx, txn)
		}
		s.logg.Error(ctx, "settlement rolled back", err)
		return err
	}

	switch {
	case txn == nil:
		s.metrics.IncSettled(string(outcome), "unknown_ref")
		s.logg.Warn(ctx, "settlement ignored: no transaction matches reference")
	case !applied:
		s.metrics.IncSettled(string(outcome), "noop")
		s.logg.Debug(s.logCtx(ctx, txn), "settlement ignored: transaction already settled")
	default:
		s.metrics.IncSettled(string(outcome), "applied")
		s.logg.Info(s.logg.WithField(s.logCtx(ctx, txn), "state", string(txn.State)), "transaction settled")
	}
	return nil
}

// applySettlement runs inside tx. The conditional transition is the idempotency gate; every
// side effect follows it so a losing concurrent caller changes nothing.
func (s *Service) applySettlement(ctx context.Context, tx *gorm.DB, txn *models.Transaction, outcome enums.SettlementOutcome, actor string) (bool, error) {
	now := s.utcNow()
	target := outcome.TargetState()

	ok, err := s.transactions.WithTx(tx).TransitionFromPending(ctx, txn.ID, target, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition transaction")
	}
	if !ok {
		return false, nil
	}
	txn.State = target
	if target == enums.TransactionStateCompleted {
		txn.CompletedAt = &now
	}

	eventType := enums.EventTransactionFailed
	if outcome == enums.SettlementOutcomeSucceeded {
		eventType = enums.EventTransactionCompleted
		if err := s.credits.Debit(ctx, tx, txn.UserID, txn.BonusAmount, txn.ID.String()); err != nil {
			return false, err
		}
		if err := s.commissions.Accrue(ctx, tx, txn.ID, txn.UserID, txn.Amount); err != nil {
			return false, err
		}
		if _, err := s.invoices.WithTx(tx).MarkPaid(ctx, txn.ID, now); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close invoice")
		}
	} else {
		for _, line := range txn.ReservedItems {
			if err := s.inventory.ReleaseTx(ctx, tx, line.ItemID, line.Qty); err != nil {
				return false, err
			}
		}
	}

	for _, hook := range s.hooks {
		if err := hook.OnSettled(ctx, tx, txn, outcome); err != nil {
			return false, err
		}
	}

	err = s.audit.Append(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     audit.ActionTransactionSettled,
		EntityType: audit.EntityTransaction,
		EntityID:   txn.ID.String(),
		Payload: map[string]any{
			"outcome":      outcome,
			"state":        target,
			"amount":       txn.Amount.StringFixed(2),
			"bonus_amount": txn.BonusAmount.StringFixed(2),
		},
	})
	if err != nil {
		return false, err
	}

	event := payloads.TransactionSettledEvent{
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		Kind:          txn.Kind,
		State:         target,
		Method:        txn.Method,
		Amount:        txn.Amount.StringFixed(2),
		BonusAmount:   txn.BonusAmount.StringFixed(2),
		Currency:      txn.Currency,
		Correlation:   txn.Correlation,
		SettledAt:     now,
	}
	if txn.ExternalRef != nil {
		event.ExternalRef = *txn.ExternalRef
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Actor:         &outbox.ActorRef{UserID: txn.UserID, Role: actor},
		Data:          event,
		Version:       1,
		OccurredAt:    now,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement event")
	}
	return true, nil
}

func actorFor(txn *models.Transaction) string {
	if txn.ExternalRef != nil {
		return "provider:" + string(txn.Method)
	}
	return audit.ActorSystem
}
