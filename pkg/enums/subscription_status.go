package enums

// SubscriptionStatus tracks a user's entitlement window.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

var subscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusCancelled,
	SubscriptionStatusExpired,
}

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool { return oneOf(s, subscriptionStatuses) }

// Entitled reports whether the holder keeps access until expires_at. A cancelled
// subscription stops renewing but runs out its paid period.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusCancelled
}

// EntitledSubscriptionStatuses lists the statuses Entitled accepts, for SQL filters.
func EntitledSubscriptionStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusCancelled}
}

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	return parseOneOf("subscription status", value, subscriptionStatuses)
}
