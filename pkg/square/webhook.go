package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries Square's webhook HMAC.
const SignatureHeader = "x-square-hmacsha256-signature"

// VerifyWebhook checks base64(HMAC-SHA256(key, notificationURL + body)), the scheme
// Square documents for webhook subscriptions.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	return verify(c.webhookSecret, c.webhookURL, body, signature)
}

func verify(key []byte, notificationURL string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if len(key) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(sign(key, notificationURL, body)), []byte(signature))
}

func sign(key []byte, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
