// Package sim is an in-memory order-book venue used for paper trading and tests.
package sim

import (
	"context"
	"strconv"
	"sync"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/adapter/enum"
	"mmkeeper/internal/errors"
	"mmkeeper/internal/venue"
	"mmkeeper/pkg/exception"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var _ venue.OrderBook = (*Venue)(nil)

// Venue keeps orders and balances in memory. Depending on the profile, reported
// balances either still include funds locked in open orders (Kraken style) or
// exclude them (eToro style).
type Venue struct {
	profile venue.Profile

	mu       sync.Mutex
	seq      uint64
	orders   []adapter.Order
	balances adapter.Balances

	// Hooks let tests inject venue failures.
	FailPlace  func(side enum.OrderSide, price, amount decimal.Decimal) error
	FailCancel func(id string) error
	FailRead   func() error
}

func New(profile venue.Profile, balances adapter.Balances) *Venue {
	if balances == nil {
		balances = adapter.Balances{}
	}

	return &Venue{
		profile:  profile,
		balances: balances.Clone(),
	}
}

func (v *Venue) Profile() venue.Profile {
	return v.profile
}

func (v *Venue) OpenOrders(ctx context.Context, pair string) ([]adapter.Order, error) {
	if err := v.readErr(ctx); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return lo.Filter(v.orders, func(o adapter.Order, _ int) bool {
		return o.Pair == pair
	}), nil
}

func (v *Venue) Balances(ctx context.Context) (adapter.Balances, error) {
	if err := v.readErr(ctx); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	out := v.balances.Clone()
	if v.profile.BalancesIncludeLocked {
		return out, nil
	}

	for _, o := range v.orders {
		currency := v.payCurrency(o.Side)
		out[currency] = out.Get(currency).Sub(o.PayAmount())
	}

	return out, nil
}

func (v *Venue) PlaceOrder(ctx context.Context, pair string, side enum.OrderSide, price, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !side.IsAvailable() {
		return "", exception.ErrOrderUnsupportedSide
	}

	if pair != v.profile.Pair() {
		return "", errors.Wrapf(exception.ErrVenueUnknownPair, "pair %s", pair)
	}

	if !price.IsPositive() || !amount.IsPositive() {
		return "", exception.ErrOrderInvalidRequest
	}

	if v.FailPlace != nil {
		if err := v.FailPlace(side, price, amount); err != nil {
			return "", err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	o := adapter.Order{
		Pair:     pair,
		Side:     side,
		Price:    v.profile.RoundPrice(price),
		Amount:   amount,
		PlacedAt: time.Now(),
	}

	currency := v.payCurrency(side)
	if v.free(currency).LessThan(o.PayAmount()) {
		return "", exception.ErrOrderInsufficientFunds
	}

	v.seq++
	o.ID = "SIM-" + strconv.FormatUint(v.seq, 10)
	v.orders = append(v.orders, o)

	return o.ID, nil
}

func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if v.FailCancel != nil {
		if err := v.FailCancel(orderID); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	_, idx, ok := lo.FindIndexOf(v.orders, func(o adapter.Order) bool {
		return o.ID == orderID
	})
	if !ok {
		return errors.Wrapf(exception.ErrOrderNotFound, "order %s", orderID)
	}

	v.orders = append(v.orders[:idx], v.orders[idx+1:]...)
	return nil
}

// Fill executes amount of the order against its counterparty, moving balances.
// A fully filled order leaves the book.
func (v *Venue) Fill(orderID string, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, idx, ok := lo.FindIndexOf(v.orders, func(o adapter.Order) bool {
		return o.ID == orderID
	})
	if !ok {
		return errors.Wrapf(exception.ErrOrderNotFound, "order %s", orderID)
	}

	o := &v.orders[idx]
	amount = decimal.Min(amount, o.Remaining())
	quote := amount.Mul(o.Price)
	base, quoteSym := v.profile.SellToken(), v.profile.BuyToken()

	if o.IsSell() {
		v.balances[base] = v.balances.Get(base).Sub(amount)
		v.balances[quoteSym] = v.balances.Get(quoteSym).Add(quote)
	} else {
		v.balances[base] = v.balances.Get(base).Add(amount)
		v.balances[quoteSym] = v.balances.Get(quoteSym).Sub(quote)
	}

	o.FilledAmount = o.FilledAmount.Add(amount)
	if o.Remaining().IsZero() {
		v.orders = append(v.orders[:idx], v.orders[idx+1:]...)
	}

	return nil
}

func (v *Venue) payCurrency(side enum.OrderSide) string {
	if side.IsSell() {
		return v.profile.SellToken()
	}
	return v.profile.BuyToken()
}

// free must be called with mu held.
func (v *Venue) free(currency string) decimal.Decimal {
	locked := decimal.Zero
	for _, o := range v.orders {
		if v.payCurrency(o.Side) == currency {
			locked = locked.Add(o.PayAmount())
		}
	}
	return v.balances.Get(currency).Sub(locked)
}

func (v *Venue) readErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.FailRead != nil {
		return v.FailRead()
	}
	return nil
}
