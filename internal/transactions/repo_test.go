package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

func TestTransitionFromPendingOnlyOnce(t *testing.T) {
	t.Parallel()

	repo, db := newTestRepo(t)
	ctx := context.Background()
	txn := seedTransaction(t, db, enums.TransactionKindStorePurchase, nil)

	ok, err := repo.TransitionFromPending(ctx, txn.ID, enums.TransactionStateCompleted, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionFromPending(ctx, txn.ID, enums.TransactionStateFailed, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second transition must be a no-op")

	got, err := repo.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, enums.TransactionStateCompleted, got.State)
	assert.NotNil(t, got.CompletedAt)
}

func TestFindByExternalRef(t *testing.T) {
	t.Parallel()

	repo, db := newTestRepo(t)
	ctx := context.Background()
	txn := seedTransaction(t, db, enums.TransactionKindStorePurchase, nil)

	payload := "qr-payload"
	require.NoError(t, repo.AttachProviderResult(ctx, txn.ID, ProviderResult{ExternalRef: "pi_123", Payload: &payload}))

	got, err := repo.FindByExternalRef(ctx, "pi_123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, txn.ID, got.ID)
	require.NotNil(t, got.ProviderPayload)
	assert.Equal(t, payload, *got.ProviderPayload)

	missing, err := repo.FindByExternalRef(ctx, "pi_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkRefundedRequiresCompleted(t *testing.T) {
	t.Parallel()

	repo, db := newTestRepo(t)
	ctx := context.Background()
	txn := seedTransaction(t, db, enums.TransactionKindStorePurchase, nil)

	update := RefundUpdate{State: enums.TransactionStateRefunded, Amount: decimal.NewFromInt(50), At: time.Now()}
	ok, err := repo.MarkRefunded(ctx, txn.ID, update)
	require.NoError(t, err)
	assert.False(t, ok, "pending transactions cannot be refunded")

	_, err = repo.TransitionFromPending(ctx, txn.ID, enums.TransactionStateCompleted, time.Now())
	require.NoError(t, err)

	ok, err = repo.MarkRefunded(ctx, txn.ID, update)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStateRefunded, got.State)
	assert.True(t, got.RefundedAmount.Equal(decimal.NewFromInt(50)))
}

func TestHasPendingRenewal(t *testing.T) {
	t.Parallel()

	repo, db := newTestRepo(t)
	ctx := context.Background()
	subID := uuid.New()

	has, err := repo.HasPendingRenewal(ctx, subID)
	require.NoError(t, err)
	assert.False(t, has)

	txn := seedTransaction(t, db, enums.TransactionKindRenewal, &subID)
	has, err = repo.HasPendingRenewal(ctx, subID)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = repo.TransitionFromPending(ctx, txn.ID, enums.TransactionStateFailed, time.Now())
	require.NoError(t, err)
	has, err = repo.HasPendingRenewal(ctx, subID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestWithTxRollsBack(t *testing.T) {
	t.Parallel()

	repo, db := newTestRepo(t)
	ctx := context.Background()
	id := uuid.New()

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, repo.WithTx(tx).Create(ctx, newTransaction(id, enums.TransactionKindStorePurchase, nil)))
		return gorm.ErrInvalidTransaction
	})

	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	dsn := "file:transactions_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Transaction{}))
	return NewRepository(db), db
}

func newTransaction(id uuid.UUID, kind enums.TransactionKind, subscriptionID *uuid.UUID) *models.Transaction {
	return &models.Transaction{
		ID:             id,
		UserID:         uuid.New(),
		Kind:           kind,
		Amount:         decimal.NewFromInt(100),
		BonusAmount:    decimal.Zero,
		Currency:       "USD",
		Method:         enums.PaymentMethodCard,
		State:          enums.TransactionStatePending,
		SubscriptionID: subscriptionID,
	}
}

func seedTransaction(t *testing.T, db *gorm.DB, kind enums.TransactionKind, subscriptionID *uuid.UUID) *models.Transaction {
	t.Helper()
	txn := newTransaction(uuid.New(), kind, subscriptionID)
	require.NoError(t, db.Create(txn).Error)
	return txn
}
