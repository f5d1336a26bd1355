// Package venue defines the capability surface the keeper needs from an
// order-book exchange, and the per-venue quirks that parameterize it.
package venue

import (
	"context"
	"strings"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/adapter/enum"

	"github.com/shopspring/decimal"
)

// OrderBook is a uniform adapter over an order-book venue.
type OrderBook interface {
	OpenOrders(ctx context.Context, pair string) ([]adapter.Order, error)
	Balances(ctx context.Context) (adapter.Balances, error)
	CancelOrder(ctx context.Context, orderID string) error
	PlaceOrder(ctx context.Context, pair string, side enum.OrderSide, price, amount decimal.Decimal) (string, error)
	Profile() Profile
}

// Profile carries venue quirks as configuration so the core loop never branches on venue.
type Profile struct {
	Name string

	// Base and Quote are the sell and buy tokens of the pair in venue spelling.
	Base  string
	Quote string

	// PairSeparator is placed between base and quote when formatting the pair.
	PairSeparator string
	SymbolCase    enum.SymbolCase

	// PricePrecision is the number of decimals accepted for prices. Negative disables rounding.
	PricePrecision int32

	// BalancesIncludeLocked is true when reported balances still contain amounts
	// committed to open orders, so the keeper has to subtract them itself.
	BalancesIncludeLocked bool

	// CurrencyAliases maps venue balance keys to the symbols used in Base/Quote,
	// e.g. "XXBT" -> "XBT".
	CurrencyAliases map[string]string
}

// Pair formats the trading pair in venue spelling.
func (p Profile) Pair() string {
	return p.SymbolCase.Apply(p.Base + p.PairSeparator + p.Quote)
}

// SellToken is the currency sell orders pay with.
func (p Profile) SellToken() string {
	return p.SymbolCase.Apply(p.Base)
}

// BuyToken is the currency buy orders pay with.
func (p Profile) BuyToken() string {
	return p.SymbolCase.Apply(p.Quote)
}

// RoundPrice rounds price to the venue precision.
func (p Profile) RoundPrice(price decimal.Decimal) decimal.Decimal {
	if p.PricePrecision < 0 {
		return price
	}

	return price.Round(p.PricePrecision)
}

// Normalize rewrites balance keys through CurrencyAliases and the symbol case.
func (p Profile) Normalize(raw adapter.Balances) adapter.Balances {
	out := make(adapter.Balances, len(raw))
	for currency, amount := range raw {
		if alias, ok := p.CurrencyAliases[currency]; ok {
			currency = alias
		}

		key := p.SymbolCase.Apply(strings.TrimSpace(currency))
		out[key] = out[key].Add(amount)
	}

	return out
}

// SplitPair parses "BASE_QUOTE", "BASE/QUOTE" or a six letter "BASEQUOTE" pair.
func SplitPair(pair string) (base, quote string, ok bool) {
	for _, sep := range []string{"_", "/", "-"} {
		if parts := strings.SplitN(pair, sep, 2); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], true
		}
	}

	if len(pair) == 6 {
		return pair[:3], pair[3:], true
	}

	return "", "", false
}
