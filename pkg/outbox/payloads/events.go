package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
)

// TransactionSettledEvent is emitted when a pending transaction reaches a terminal state.
type TransactionSettledEvent struct {
	TransactionID uuid.UUID              `json:"transaction_id"`
	UserID        uuid.UUID              `json:"user_id"`
	Kind          enums.TransactionKind  `json:"kind"`
	State         enums.TransactionState `json:"state"`
	Method        enums.PaymentMethod    `json:"method"`
	Amount        string                 `json:"amount"`
	BonusAmount   string                 `json:"bonus_amount"`
	Currency      string                 `json:"currency"`
	ExternalRef   string                 `json:"external_ref,omitempty"`
	Correlation   map[string]string      `json:"correlation,omitempty"`
	SettledAt     time.Time              `json:"settled_at"`
}

// TransactionRefundedEvent is emitted after a completed transaction is refunded.
type TransactionRefundedEvent struct {
	TransactionID  uuid.UUID              `json:"transaction_id"`
	UserID         uuid.UUID              `json:"user_id"`
	State          enums.TransactionState `json:"state"`
	RefundedAmount string                 `json:"refunded_amount"`
	BonusRestored  string                 `json:"bonus_restored"`
	Currency       string                 `json:"currency"`
	RefundRef      string                 `json:"refund_ref,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	RefundedAt     time.Time              `json:"refunded_at"`
}

// SubscriptionRenewedEvent reports an extended entitlement window.
type SubscriptionRenewedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	TransactionID  uuid.UUID `json:"transaction_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	Activated      bool      `json:"activated"`
}

// SubscriptionExpiredEvent reports that the expiry sweep closed a subscription.
type SubscriptionExpiredEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	ExpiredAt      time.Time `json:"expired_at"`
	RevokedGrants  int64     `json:"revoked_grants"`
}
