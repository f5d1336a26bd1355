package keeper

import (
	"strings"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/venue"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Accountant computes spendable balances from a snapshot.
type Accountant struct {
	profile venue.Profile
}

func NewAccountant(profile venue.Profile) Accountant {
	return Accountant{profile: profile}
}

// Locked sums the remaining pay amount of every order paying in currency. It is
// zero for venues whose balances already exclude open orders.
func (a Accountant) Locked(orders []adapter.Order, currency string) decimal.Decimal {
	if !a.profile.BalancesIncludeLocked {
		return decimal.Zero
	}

	paying := lo.Filter(orders, func(o adapter.Order, _ int) bool {
		return strings.EqualFold(a.payCurrency(o), currency)
	})

	return lo.Reduce(paying, func(acc decimal.Decimal, o adapter.Order, _ int) decimal.Decimal {
		return acc.Add(o.PayAmount())
	}, decimal.Zero)
}

// Available is max(raw - locked, 0). A currency the venue did not report is zero.
func (a Accountant) Available(balances adapter.Balances, orders []adapter.Order, currency string) decimal.Decimal {
	available := balances.Get(currency).Sub(a.Locked(orders, currency))
	if available.IsNegative() {
		return decimal.Zero
	}

	return available
}

func (a Accountant) payCurrency(o adapter.Order) string {
	if o.IsSell() {
		return a.profile.SellToken()
	}
	return a.profile.BuyToken()
}
