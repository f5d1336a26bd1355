package adapter

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Balances maps a currency symbol to the raw amount the venue reports.
type Balances map[string]decimal.Decimal

// Get returns the balance for currency, matching case-insensitively. Missing is zero.
func (b Balances) Get(currency string) decimal.Decimal {
	if v, ok := b[currency]; ok {
		return v
	}

	for k, v := range b {
		if strings.EqualFold(k, currency) {
			return v
		}
	}

	return decimal.Zero
}

// Clone returns an independent copy.
func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for k, v := range b {
		out[k] = v
	}

	return out
}
