package providers

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

func TestSimulatedAdapterIsDeterministic(t *testing.T) {
	adapter := NewSimulatedAdapter(enums.PaymentMethodCard, config.BankTransferConfig{})
	req := CreateRequest{TransactionID: uuid.New(), Amount: decimal.NewFromInt(10), Currency: enums.CurrencyUSD, ReturnURL: "https://app.example.com/done"}

	first, err := adapter.Create(context.Background(), req)
	require.NoError(t, err)
	second, err := adapter.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ExternalRef, second.ExternalRef)
	assert.Equal(t, ExternalRefFor(enums.PaymentMethodCard, req.TransactionID.String()), first.ExternalRef)
	assert.True(t, strings.HasPrefix(first.RedirectURL, simulatedCheckoutBase))
	assert.True(t, adapter.VerifySignature([]byte("anything"), ""))
}

func TestSimulatedBankIssuesInvoice(t *testing.T) {
	adapter := NewSimulatedAdapter(enums.PaymentMethodBankTransfer, config.BankTransferConfig{Beneficiary: "PF"})
	result, err := adapter.Create(context.Background(), CreateRequest{TransactionID: uuid.New(), Amount: decimal.NewFromInt(5), Currency: enums.CurrencyUSD})
	require.NoError(t, err)
	require.NotNil(t, result.Invoice)
	assert.Regexp(t, invoiceNumberPattern, result.ExternalRef)
	assert.False(t, adapter.SupportsRefund())
}

func TestSimulatedParseEvent(t *testing.T) {
	adapter := NewSimulatedAdapter(enums.PaymentMethodInstantTransfer, config.BankTransferConfig{})

	event, err := adapter.ParseEvent([]byte(`{"external_ref":"sim_x","outcome":"succeeded"}`))
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementOutcomeSucceeded, event.Outcome)
	assert.Equal(t, "sim_x:succeeded", event.ID)

	event, err = adapter.ParseEvent([]byte(`{"external_ref":"sim_x","outcome":"pending"}`))
	require.NoError(t, err)
	assert.True(t, event.Ignored)
}
