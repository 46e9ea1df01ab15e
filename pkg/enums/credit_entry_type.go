package enums

import "fmt"

// CreditEntryType classifies a movement of bonus credit.
type CreditEntryType string

const (
	CreditEntryDebit  CreditEntryType = "debit"
	CreditEntryCredit CreditEntryType = "credit"
)

var validCreditEntryTypes = []CreditEntryType{
	CreditEntryDebit,
	CreditEntryCredit,
}

// String implements fmt.Stringer.
func (t CreditEntryType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known CreditEntryType.
func (t CreditEntryType) IsValid() bool {
	for _, candidate := range validCreditEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCreditEntryType converts raw input into a CreditEntryType.
func ParseCreditEntryType(value string) (CreditEntryType, error) {
	for _, candidate := range validCreditEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit entry type %q", value)
}
