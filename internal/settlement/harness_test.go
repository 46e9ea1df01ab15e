package settlement

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/internal/audit"
	"github.com/angelmondragon/packfinderz-settlement/internal/commissions"
	"github.com/angelmondragon/packfinderz-settlement/internal/credits"
	"github.com/angelmondragon/packfinderz-settlement/internal/inventory"
	"github.com/angelmondragon/packfinderz-settlement/internal/invoices"
	"github.com/angelmondragon/packfinderz-settlement/internal/providers"
	"github.com/angelmondragon/packfinderz-settlement/internal/transactions"
	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	dbpkg "github.com/angelmondragon/packfinderz-settlement/pkg/db"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) countLevel(level string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), `"level":"`+level+`"`)
}

type fakeAdapter struct {
	mu          sync.Mutex
	method      enums.PaymentMethod
	createCalls []providers.CreateRequest
	refundCalls []providers.RefundRequest
	createErr   error
	block       bool
	onRefund    func()
}

func (f *fakeAdapter) Method() enums.PaymentMethod { return f.method }
func (f *fakeAdapter) SupportsRefund() bool        { return true }
func (f *fakeAdapter) SignatureHeader() string     { return "X-Test-Signature" }
func (f *fakeAdapter) VerifySignature(_ []byte, signature string) bool {
	return signature == "valid"
}
func (f *fakeAdapter) ParseEvent([]byte) (*providers.Event, error) {
	return &providers.Event{Ignored: true}, nil
}

func (f *fakeAdapter) Create(ctx context.Context, req providers.CreateRequest) (*providers.CreateResult, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &providers.CreateResult{
		ExternalRef: "ext_" + req.TransactionID.String(),
		RedirectURL: "https://pay.example.com/" + req.TransactionID.String(),
	}, nil
}

func (f *fakeAdapter) Refund(_ context.Context, req providers.RefundRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls = append(f.refundCalls, req)
	if f.onRefund != nil {
		f.onRefund()
	}
	return "rf_" + req.TransactionID.String(), nil
}

func (f *fakeAdapter) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls)
}

type recordingHook struct {
	calls []enums.SettlementOutcome
	err   error
}

func (h *recordingHook) OnSettled(_ context.Context, _ *gorm.DB, _ *models.Transaction, outcome enums.SettlementOutcome) error {
	h.calls = append(h.calls, outcome)
	return h.err
}

type harness struct {
	t       *testing.T
	db      *gorm.DB
	svc     *Service
	card    *fakeAdapter
	credits credits.Service
	stock   *inventory.Service
	logs    *syncBuffer
}

type harnessOption func(*ServiceParams)

func withHooks(hooks ...Hook) harnessOption {
	return func(p *ServiceParams) { p.Hooks = hooks }
}

func withTimeout(d time.Duration) harnessOption {
	return func(p *ServiceParams) { p.ProviderTimeout = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	dsn := "file:settlement_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Transaction{},
		&models.Invoice{},
		&models.InventoryItem{},
		&models.CreditAccount{},
		&models.CreditEntry{},
		&models.CommissionAccrual{},
		&models.AuditEntry{},
		&models.OutboxEvent{},
	))

	logs := &syncBuffer{}
	logg := logger.New(logger.Options{ServiceName: "settlement-test", Output: logs})

	creditSvc, err := credits.NewService(credits.NewRepository(db))
	require.NoError(t, err)
	stock, err := inventory.NewService(db)
	require.NoError(t, err)
	commissionSvc, err := commissions.NewService(db, decimal.RequireFromString("0.10"))
	require.NoError(t, err)
	auditSvc, err := audit.NewService(db)
	require.NoError(t, err)

	card := &fakeAdapter{method: enums.PaymentMethodCard}
	bank := providers.NewBankAdapter(config.BankTransferConfig{Beneficiary: "PackFinderz LLC", DueDays: 7})
	registry, err := providers.NewRegistry(false, card, bank)
	require.NoError(t, err)

	params := ServiceParams{
		TxRunner:        dbpkg.Wrap(db),
		Transactions:    transactions.NewRepository(db),
		Invoices:        invoices.NewRepository(db),
		Inventory:       stock,
		Credits:         creditSvc,
		Commissions:     commissionSvc,
		Audit:           auditSvc,
		Providers:       registry,
		Outbox:          outbox.NewService(outbox.NewRepository(db), logg),
		Logger:          logg,
		ProviderTimeout: time.Second,
		DefaultCurrency: enums.CurrencyUSD,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	return &harness{t: t, db: db, svc: svc, card: card, credits: creditSvc, stock: stock, logs: logs}
}

func (h *harness) fund(user uuid.UUID, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.credits.Credit(context.Background(), nil, user, decimal.NewFromInt(amount), "promo", "seed"))
}

func (h *harness) balance(user uuid.UUID) decimal.Decimal {
	h.t.Helper()
	b, err := h.credits.Balance(context.Background(), user)
	require.NoError(h.t, err)
	return b
}

func (h *harness) load(id uuid.UUID) *models.Transaction {
	h.t.Helper()
	var txn models.Transaction
	require.NoError(h.t, h.db.First(&txn, "id = ?", id).Error)
	return &txn
}

func (h *harness) count(model any, where string, args ...any) int64 {
	h.t.Helper()
	var n int64
	q := h.db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(h.t, q.Count(&n).Error)
	return n
}

func (h *harness) seedItem(stock int) uuid.UUID {
	h.t.Helper()
	id := uuid.New()
	require.NoError(h.t, h.db.Create(&models.InventoryItem{ID: id, Name: "pack", AvailableQty: stock, Active: true}).Error)
	return id
}

func (h *harness) available(id uuid.UUID) int {
	h.t.Helper()
	var item models.InventoryItem
	require.NoError(h.t, h.db.First(&item, "id = ?", id).Error)
	return item.AvailableQty
}

func cardInput(user uuid.UUID, amount, bonus int64) InitiateInput {
	return InitiateInput{
		UserID:      user,
		Kind:        enums.TransactionKindStorePurchase,
		Amount:      decimal.NewFromInt(amount),
		BonusAmount: decimal.NewFromInt(bonus),
		Method:      enums.PaymentMethodCard,
		SourceToken: "tok",
	}
}
