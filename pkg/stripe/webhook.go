package stripe

import (
	"encoding/json"

	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

// SignatureHeader carries Stripe's timestamped webhook signature.
const SignatureHeader = "Stripe-Signature"

// Event is a verified webhook event with its data object left raw.
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// ConstructEvent verifies the signature and the timestamp tolerance before decoding.
func (c *Client) ConstructEvent(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUntrustedWebhook, err, "verify stripe signature")
	}
	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil {
		out.Data = event.Data.Raw
	}
	return out, nil
}
