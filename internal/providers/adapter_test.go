package providers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

func TestRegistryResolve(t *testing.T) {
	bank := NewBankAdapter(config.BankTransferConfig{})
	registry, err := NewRegistry(false, bank)
	require.NoError(t, err)

	adapter, err := registry.Resolve(enums.PaymentMethodBankTransfer)
	require.NoError(t, err)
	assert.Same(t, bank, adapter)

	_, err = registry.Resolve(enums.PaymentMethodCard)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, []enums.PaymentMethod{enums.PaymentMethodBankTransfer}, registry.Methods())
	assert.False(t, registry.Simulated())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(true,
		NewSimulatedAdapter(enums.PaymentMethodCard, config.BankTransferConfig{}),
		NewSimulatedAdapter(enums.PaymentMethodCard, config.BankTransferConfig{}),
	)
	assert.Error(t, err)
}

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"1000":   100000,
		"12.34":  1234,
		"0.005":  1,
		"700.00": 70000,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MinorUnits(decimal.RequireFromString(raw), enums.CurrencyUSD), raw)
	}
}
