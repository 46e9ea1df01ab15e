package credits

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-settlement/pkg/db/models"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatal("expected error when repository missing")
	}
}

func TestCreditOpensAccountAndAccumulates(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, svc.Credit(ctx, nil, user, decimal.NewFromInt(400), "promo", "seed-1"))
	require.NoError(t, svc.Credit(ctx, nil, user, decimal.NewFromInt(600), "promo", "seed-2"))

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000)), "balance=%s", balance)

	var count int64
	require.NoError(t, db.Model(&models.CreditEntry{}).Where("user_id = ?", user).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestValidate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, svc.Credit(ctx, nil, user, decimal.NewFromInt(300), "promo", "seed"))

	cases := []struct {
		name   string
		amount decimal.Decimal
		want   bool
	}{
		{name: "zero", amount: decimal.Zero, want: true},
		{name: "exact", amount: decimal.NewFromInt(300), want: true},
		{name: "over", amount: decimal.NewFromInt(301), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := svc.Validate(ctx, user, tc.amount)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}

	ok, err := svc.Validate(ctx, uuid.New(), decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.False(t, ok, "unknown user has no balance")

	_, err = svc.Validate(ctx, user, decimal.NewFromInt(-1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDebitInsufficientBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, svc.Credit(ctx, nil, user, decimal.NewFromInt(100), "promo", "seed"))

	err := svc.Debit(ctx, nil, user, decimal.NewFromInt(150), "txn-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredit), "err=%v", err)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))

	var count int64
	require.NoError(t, db.Model(&models.CreditEntry{}).Where("correlation_ref = ?", "txn-1").Count(&count).Error)
	assert.Zero(t, count)
}

func TestDebitInsideRolledBackTransaction(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, svc.Credit(ctx, nil, user, decimal.NewFromInt(100), "promo", "seed"))

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Debit(ctx, tx, user, decimal.NewFromInt(40), "txn-2"); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "rollback must restore balance")
}

func TestDebitRecordsEntry(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, svc.Credit(ctx, nil, user, decimal.NewFromInt(1000), "promo", "seed"))

	require.NoError(t, svc.Debit(ctx, nil, user, decimal.NewFromInt(300), "txn-3"))

	entries, err := NewRepository(db).ListEntries(ctx, "txn-3")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.CreditEntryDebit, entries[0].Type)
	assert.Equal(t, SourceSettlement, entries[0].Source)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(300)))
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:credits_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CreditAccount{}, &models.CreditEntry{}))
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}
