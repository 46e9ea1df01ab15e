package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/internal/audit"
	"github.com/angelmondragon/packfinderz-settlement/internal/credits"
	"github.com/angelmondragon/packfinderz-settlement/internal/inventory"
	"github.com/angelmondragon/packfinderz-settlement/internal/invoices"
	"github.com/angelmondragon/packfinderz-settlement/internal/providers"
	"github.com/angelmondragon/packfinderz-settlement/internal/transactions"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/metrics"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
)

const defaultProviderTimeout = 15 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReserver interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, requests []inventory.ReservationRequest) ([]inventory.ReservationResult, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, qty int) error
}

type commissionAccruer interface {
	Accrue(ctx context.Context, tx *gorm.DB, transactionID, userID uuid.UUID, settledAmount decimal.Decimal) error
}

type auditAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type adapterResolver interface {
	Resolve(method enums.PaymentMethod) (providers.Adapter, error)
}

// Hook runs inside the settlement unit after a pending transaction reached its terminal state.
// A hook error rolls the whole settlement back.
type Hook interface {
	OnSettled(ctx context.Context, tx *gorm.DB, txn *models.Transaction, outcome enums.SettlementOutcome) error
}

// ServiceParams wires the coordinator's collaborators.
type ServiceParams struct {
	TxRunner        txRunner
	Transactions    transactions.Repository
	Invoices        invoices.Repository
	Inventory       stockReserver
	Credits         credits.Service
	Commissions     commissionAccruer
	Audit           auditAppender
	Providers       adapterResolver
	Outbox          eventEmitter
	Hooks           []Hook
	Metrics         *metrics.SettlementMetrics
	Logger          *logger.Logger
	ProviderTimeout time.Duration
	DefaultCurrency enums.Currency
	ReturnURL       string
	Now             func() time.Time
}

// Service is the settlement coordinator.
type Service struct {
	tx              txRunner
	transactions    transactions.Repository
	invoices        invoices.Repository
	inventory       stockReserver
	credits         credits.Service
	commissions     commissionAccruer
	audit           auditAppender
	providers       adapterResolver
	outbox          eventEmitter
	hooks           []Hook
	metrics         *metrics.SettlementMetrics
	logg            *logger.Logger
	providerTimeout time.Duration
	defaultCurrency enums.Currency
	returnURL       string
	now             func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Transactions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction repository required")
	case params.Invoices == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice repository required")
	case params.Inventory == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	case params.Credits == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credit service required")
	case params.Commissions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commission service required")
	case params.Audit == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit service required")
	case params.Providers == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider registry required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}

	timeout := params.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	currency := params.DefaultCurrency
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		tx:              params.TxRunner,
		transactions:    params.Transactions,
		invoices:        params.Invoices,
		inventory:       params.Inventory,
		credits:         params.Credits,
		commissions:     params.Commissions,
		audit:           params.Audit,
		providers:       params.Providers,
		outbox:          params.Outbox,
		hooks:           params.Hooks,
		metrics:         params.Metrics,
		logg:            params.Logger,
		providerTimeout: timeout,
		defaultCurrency: currency,
		returnURL:       params.ReturnURL,
		now:             now,
	}, nil
}

// AddHook registers a settlement hook after construction, for collaborators that
// themselves depend on the coordinator.
func (s *Service) AddHook(hook Hook) {
	if hook != nil {
		s.hooks = append(s.hooks, hook)
	}
}

// Get returns a transaction owned by userID.
func (s *Service) Get(ctx context.Context, userID, transactionID uuid.UUID) (*models.Transaction, error) {
	txn, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if txn.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction belongs to another user")
	}
	return txn, nil
}

func (s *Service) utcNow() time.Time {
	return s.now().UTC()
}

func (s *Service) logCtx(ctx context.Context, txn *models.Transaction) context.Context {
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
	fields := map[string]any{"method": string(txn.Method), "kind": string(txn.Kind)}
	if txn.ExternalRef != nil {
		fields["external_ref"] = *txn.ExternalRef
	}
	return s.logg.WithFields(ctx, fields)
}

func providerError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("payment provider %s timed out", op))
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("payment provider %s failed", op))
}
