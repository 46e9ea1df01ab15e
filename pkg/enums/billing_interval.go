package enums

import "time"

// BillingInterval defines how far a paid period pushes a subscription expiry.
type BillingInterval string

const (
	BillingIntervalEvery30Days BillingInterval = "EVERY_30_DAYS"
	BillingIntervalMonthly     BillingInterval = "MONTHLY"
	BillingIntervalAnnual      BillingInterval = "ANNUAL"
)

var billingIntervals = []BillingInterval{BillingIntervalEvery30Days, BillingIntervalMonthly, BillingIntervalAnnual}

func (b BillingInterval) String() string { return string(b) }

func (b BillingInterval) IsValid() bool { return oneOf(b, billingIntervals) }

// Extend advances from by one period. Calendar intervals follow time.AddDate
// normalisation, so Jan 31 + MONTHLY lands on Mar 2 or 3. Unknown intervals return from.
func (b BillingInterval) Extend(from time.Time) time.Time {
	switch b {
	case BillingIntervalEvery30Days:
		return from.Add(30 * 24 * time.Hour)
	case BillingIntervalMonthly:
		return from.AddDate(0, 1, 0)
	case BillingIntervalAnnual:
		return from.AddDate(1, 0, 0)
	}
	return from
}

func ParseBillingInterval(value string) (BillingInterval, error) {
	return parseOneOf("billing interval", value, billingIntervals)
}
