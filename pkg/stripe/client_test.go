package stripe

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

func TestCheckKey(t *testing.T) {
	cases := []struct {
		env     string
		key     string
		wantErr bool
	}{
		{env: "test", key: "sk_test_123"},
		{env: "test", key: "rk_test_123"},
		{env: "test", key: "sk_live_123", wantErr: true},
		{env: "live", key: "sk_live_123"},
		{env: "live", key: "sk_test_123", wantErr: true},
		{env: "staging", key: "sk_test_123", wantErr: true},
	}
	for _, tc := range cases {
		err := checkKey(tc.env, tc.key)
		assert.Equal(t, tc.wantErr, err != nil, "env=%s key=%s: %v", tc.env, tc.key, err)
	}
}

func TestNewClientRequiresSecrets(t *testing.T) {
	_, err := NewClient(t.Context(), config.StripeConfig{Secret: "whsec"}, nil)
	require.Error(t, err)
	_, err = NewClient(t.Context(), config.StripeConfig{APIKey: "sk_test_1"}, nil)
	require.Error(t, err)

	c, err := NewClient(t.Context(), config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec", Env: " TEST "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment())
	assert.Equal(t, defaultInstantMethodType, c.methodType)
}

func TestToDomainError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want pkgerrors.Code
	}{
		{"card declined", &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired}, pkgerrors.CodeValidation},
		{"bad request", &stripe.Error{HTTPStatusCode: http.StatusBadRequest}, pkgerrors.CodeValidation},
		{"idempotency", &stripe.Error{HTTPStatusCode: http.StatusConflict, Type: stripe.ErrorTypeIdempotency}, pkgerrors.CodeIdempotency},
		{"throttled", &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}, pkgerrors.CodeRateLimit},
		{"bad key", &stripe.Error{HTTPStatusCode: http.StatusUnauthorized}, pkgerrors.CodeDependency},
		{"transport", errors.New("connection reset"), pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, pkgerrors.IsCode(toDomainError(tc.err, "op"), tc.want))
		})
	}
}

func TestParamsValidation(t *testing.T) {
	_, err := PaymentIntentParams{AmountMinor: 0, Currency: "usd"}.request("promptpay")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = PaymentIntentParams{AmountMinor: 100, Currency: "dollars"}.request("promptpay")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req, err := PaymentIntentParams{AmountMinor: 100, Currency: " USD ", IdempotencyKey: "k1"}.request("promptpay")
	require.NoError(t, err)
	assert.Equal(t, "usd", *req.Currency)
	assert.Equal(t, "k1", *req.IdempotencyKey)
	assert.Equal(t, []*string{stripe.String("promptpay")}, req.PaymentMethodTypes)

	_, err = RefundParams{}.request()
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	refund, err := RefundParams{PaymentIntentID: "pi_1"}.request()
	require.NoError(t, err)
	assert.Nil(t, refund.Amount, "zero amount refunds in full")
}

func TestConstructEventVerifiesSignature(t *testing.T) {
	const secret = "whsec_test_secret"
	c := &Client{webhookSecret: secret}
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","object":"payment_intent"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	event, err := c.ConstructEvent(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
	var obj struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(event.Data, &obj))
	assert.Equal(t, "pi_123", obj.ID)

	_, err = c.ConstructEvent(payload, "t=1,v1=deadbeef")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUntrustedWebhook))
}
