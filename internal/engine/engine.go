// Package engine assembles the settlement service graph shared by the api and cron binaries.
package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-settlement/internal/access"
	"github.com/angelmondragon/packfinderz-settlement/internal/audit"
	"github.com/angelmondragon/packfinderz-settlement/internal/commissions"
	"github.com/angelmondragon/packfinderz-settlement/internal/credits"
	"github.com/angelmondragon/packfinderz-settlement/internal/inventory"
	"github.com/angelmondragon/packfinderz-settlement/internal/invoices"
	"github.com/angelmondragon/packfinderz-settlement/internal/providers"
	"github.com/angelmondragon/packfinderz-settlement/internal/settlement"
	"github.com/angelmondragon/packfinderz-settlement/internal/subscriptions"
	"github.com/angelmondragon/packfinderz-settlement/internal/transactions"
	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/metrics"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
)

// Params carries the bootstrapped infrastructure.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Registry prometheus.Registerer
}

// Engine exposes the services the binaries route to.
type Engine struct {
	Providers     *providers.Registry
	Audit         *audit.Service
	Settlement    *settlement.Service
	Subscriptions *subscriptions.Service
	Metrics       *metrics.SettlementMetrics
}

// New wires repositories and services. Subscription renewals settle through the hook
// registered on the coordinator.
func New(ctx context.Context, p Params) (*Engine, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "config, logger and db are required")
	}
	cfg := p.Config
	gdb := p.DB.DB()
	reg := p.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registry, err := providers.NewRegistryFromConfig(ctx, cfg, p.Logger)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build provider registry")
	}

	auditSvc, err := audit.NewService(gdb)
	if err != nil {
		return nil, err
	}
	inventorySvc, err := inventory.NewService(gdb)
	if err != nil {
		return nil, err
	}
	creditSvc, err := credits.NewService(credits.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	commissionSvc, err := commissions.NewService(gdb, cfg.Settlement.CommissionRate)
	if err != nil {
		return nil, err
	}
	accessSvc, err := access.NewService(gdb)
	if err != nil {
		return nil, err
	}

	currency, err := enums.ParseCurrency(cfg.Settlement.DefaultCurrency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "settlement default currency")
	}

	txnRepo := transactions.NewRepository(gdb)
	emitter := outbox.NewService(outbox.NewRepository(gdb), p.Logger)
	settlementMetrics := metrics.NewSettlementMetrics(reg)

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		TxRunner:        p.DB,
		Transactions:    txnRepo,
		Invoices:        invoices.NewRepository(gdb),
		Inventory:       inventorySvc,
		Credits:         creditSvc,
		Commissions:     commissionSvc,
		Audit:           auditSvc,
		Providers:       registry,
		Outbox:          emitter,
		Metrics:         settlementMetrics,
		Logger:          p.Logger,
		ProviderTimeout: cfg.Settlement.ProviderTimeout,
		DefaultCurrency: currency,
		ReturnURL:       cfg.Settlement.ReturnURL,
	})
	if err != nil {
		return nil, err
	}

	subscriptionSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		TxRunner:     p.DB,
		Repo:         subscriptions.NewRepository(gdb),
		Transactions: txnRepo,
		Payments:     settlementSvc,
		Access:       accessSvc,
		Audit:        auditSvc,
		Outbox:       emitter,
		Config:       cfg.Renewal,
		Logger:       p.Logger,
	})
	if err != nil {
		return nil, err
	}
	settlementSvc.AddHook(subscriptionSvc.RenewalHook())

	return &Engine{
		Providers:     registry,
		Audit:         auditSvc,
		Settlement:    settlementSvc,
		Subscriptions: subscriptionSvc,
		Metrics:       settlementMetrics,
	}, nil
}
