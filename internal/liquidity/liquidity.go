// Package liquidity keeps a liquidity pool position in or out of the pool
// depending on how far the pool's exchange rate has drifted from a reference price.
package liquidity

import (
	"context"

	"github.com/shopspring/decimal"
)

// Pool is a constant-function liquidity pool for one base/quote pair.
// Amounts are in whole tokens, not base units.
type Pool interface {
	// ExchangeRate is the quote price of one base token in the pool.
	ExchangeRate(ctx context.Context) (decimal.Decimal, error)
	// Balances are the wallet's base and quote holdings.
	Balances(ctx context.Context) (base, quote decimal.Decimal, err error)
	// Position is the wallet's liquidity share balance. Zero means no position.
	Position(ctx context.Context) (decimal.Decimal, error)
	AddLiquidity(ctx context.Context, amount, minLiquidity decimal.Decimal) (tx string, err error)
	RemoveLiquidity(ctx context.Context, shares decimal.Decimal) (tx string, err error)
	// WaitConfirmed blocks until tx is mined. Reverted transactions return
	// exception.ErrLiquidityTxReverted.
	WaitConfirmed(ctx context.Context, tx string) error
}

// State is the rebalancer's decision for a tick.
type State uint8

const (
	StateBalanced State = iota
	StateNeedsAdd
	StateNeedsRemove
)

func (s State) String() string {
	switch s {
	case StateBalanced:
		return "balanced"
	case StateNeedsAdd:
		return "needs_add"
	case StateNeedsRemove:
		return "needs_remove"
	default:
		return "unknown"
	}
}

// Outcome is what the tick's action amounted to.
type Outcome uint8

const (
	OutcomeSkipped Outcome = iota
	OutcomeConfirmed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var hundred = decimal.NewFromInt(100)

// Decide compares the pool price against reference. Liquidity is added only
// from an empty position while the prices agree within percentage, and removed
// entirely once they drift further apart.
func Decide(reference, poolPrice, percentage decimal.Decimal, hasPosition bool) State {
	deviation := reference.Sub(poolPrice).Abs()
	threshold := reference.Mul(percentage).Div(hundred)

	switch {
	case deviation.LessThan(threshold) && !hasPosition:
		return StateNeedsAdd
	case deviation.GreaterThan(threshold) && hasPosition:
		return StateNeedsRemove
	default:
		return StateBalanced
	}
}
