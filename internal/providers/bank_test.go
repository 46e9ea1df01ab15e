package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

var invoiceNumberPattern = regexp.MustCompile(`^INV-\d{8}-[0-9A-F]{8}$`)

func TestBankAdapterCreateIssuesInvoice(t *testing.T) {
	adapter := NewBankAdapter(config.BankTransferConfig{
		Beneficiary:   "PackFinderz LLC",
		BankName:      "First Bank",
		AccountNumber: "000123",
		DueDays:       5,
	})
	fixed := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	adapter.now = func() time.Time { return fixed }

	result, err := adapter.Create(context.Background(), CreateRequest{
		TransactionID: uuid.New(),
		Amount:        decimal.NewFromInt(700),
		Currency:      enums.CurrencyUSD,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Invoice)

	assert.Regexp(t, invoiceNumberPattern, result.ExternalRef)
	assert.Contains(t, result.ExternalRef, "INV-20260210-")
	assert.Equal(t, result.ExternalRef, result.Invoice.Number)
	assert.Equal(t, fixed.AddDate(0, 0, 5), result.Invoice.DueDate)
	assert.Equal(t, "First Bank", result.Invoice.RoutingDetails["bank_name"])
	assert.NotContains(t, result.Invoice.RoutingDetails, "swift")

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Payload), &payload))
	assert.Equal(t, "700.00", payload["amount"])
	assert.False(t, adapter.SupportsRefund())
}

func TestBankAdapterSignatureAndEvents(t *testing.T) {
	adapter := NewBankAdapter(config.BankTransferConfig{WebhookSecret: "bank-secret"})
	body := []byte(`{"event_id":"b-1","invoice_number":"INV-20260210-0A1B2C3D","status":"paid"}`)

	mac := hmac.New(sha256.New, []byte("bank-secret"))
	mac.Write(body)
	assert.True(t, adapter.VerifySignature(body, hex.EncodeToString(mac.Sum(nil))))
	assert.False(t, adapter.VerifySignature(body, "00"))

	event, err := adapter.ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "INV-20260210-0A1B2C3D", event.ExternalRef)
	assert.Equal(t, enums.SettlementOutcomeSucceeded, event.Outcome)

	event, err = adapter.ParseEvent([]byte(`{"invoice_number":"INV-1","status":"reminder_sent"}`))
	require.NoError(t, err)
	assert.True(t, event.Ignored)
	assert.Equal(t, "INV-1:reminder_sent", event.ID)
}
