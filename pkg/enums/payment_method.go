package enums

import "strings"

// PaymentMethod selects the provider adapter that collects the external part of a transaction.
type PaymentMethod string

const (
	PaymentMethodCard            PaymentMethod = "card"
	PaymentMethodInstantTransfer PaymentMethod = "instant_transfer"
	PaymentMethodBankTransfer    PaymentMethod = "bank_transfer"
)

var paymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodInstantTransfer,
	PaymentMethodBankTransfer,
}

// Provider callbacks arrive on /api/v1/webhooks/{segment}.
var webhookSegments = map[PaymentMethod]string{
	PaymentMethodCard:            "card",
	PaymentMethodInstantTransfer: "instant",
	PaymentMethodBankTransfer:    "bank",
}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return oneOf(p, paymentMethods) }

// WebhookSegment is the path segment the method's provider posts notifications to.
func (p PaymentMethod) WebhookSegment() string { return webhookSegments[p] }

// PaymentMethodForWebhook resolves a webhook path segment, ignoring case and padding.
func PaymentMethodForWebhook(segment string) (PaymentMethod, bool) {
	segment = strings.ToLower(strings.TrimSpace(segment))
	for method, s := range webhookSegments {
		if s == segment {
			return method, true
		}
	}
	return "", false
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parseOneOf("payment method", value, paymentMethods)
}
