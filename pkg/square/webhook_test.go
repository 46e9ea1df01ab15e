package square

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhook(t *testing.T) {
	c := &Client{webhookSecret: []byte("sq-secret"), webhookURL: "https://api.example.com/api/v1/webhooks/card"}
	body := []byte(`{"event_id":"evt"}`)
	sig := sign(c.webhookSecret, c.webhookURL, body)

	assert.True(t, c.VerifyWebhook(body, sig))
	assert.True(t, c.VerifyWebhook(body, " "+sig+" "))
	assert.False(t, c.VerifyWebhook(body, "bogus"))
	assert.False(t, c.VerifyWebhook([]byte(`{"event_id":"other"}`), sig))
	assert.False(t, c.VerifyWebhook(body, ""))
}

func TestVerifyWebhookBindsNotificationURL(t *testing.T) {
	key := []byte("sq-secret")
	body := []byte(`{}`)
	sig := sign(key, "https://a.example.com/hook", body)
	assert.False(t, verify(key, "https://b.example.com/hook", body, sig))
	assert.False(t, verify(nil, "https://a.example.com/hook", body, sig))
}
