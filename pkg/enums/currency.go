package enums

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code a transaction may be priced in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyTHB Currency = "THB"
	CurrencyJPY Currency = "JPY"
)

// Decimal exponent of the smallest unit providers charge in.
var currencyExponents = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyTHB: 2,
	CurrencyJPY: 0,
}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	_, ok := currencyExponents[c]
	return ok
}

// MinorUnits returns the exponent providers use for the smallest unit of c.
func (c Currency) MinorUnits() int32 {
	if exp, ok := currencyExponents[c]; ok {
		return exp
	}
	return 2
}

// ParseCurrency accepts codes in any case, e.g. from env or plan rows.
func ParseCurrency(value string) (Currency, error) {
	return parseOneOf("currency", strings.ToUpper(strings.TrimSpace(value)), []Currency{CurrencyUSD, CurrencyEUR, CurrencyTHB, CurrencyJPY})
}

// Representable reports whether amount converts to whole minor units of c without rounding.
func (c Currency) Representable(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(c.MinorUnits()))
}
