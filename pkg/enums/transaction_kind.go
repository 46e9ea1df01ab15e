package enums

import "fmt"

// TransactionKind names the domain action that produced a transaction.
type TransactionKind string

const (
	TransactionKindSubscriptionPurchase TransactionKind = "subscription_purchase"
	TransactionKindStorePurchase        TransactionKind = "store_purchase"
	TransactionKindRenewal              TransactionKind = "renewal"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindSubscriptionPurchase,
	TransactionKindStorePurchase,
	TransactionKindRenewal,
}

// String implements fmt.Stringer.
func (k TransactionKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known TransactionKind.
func (k TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts raw input into a TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}
