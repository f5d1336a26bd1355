// Package keeper runs the per-tick reconciliation between the orders resting on
// a venue and the orders a pricing policy wants.
package keeper

import (
	"context"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/errors"
	"mmkeeper/internal/feed"
	"mmkeeper/internal/obs"
	"mmkeeper/internal/orderbook"
	"mmkeeper/internal/venue"
	"mmkeeper/pkg/exception"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Policy decides which resting orders must go and which new ones to add.
type Policy interface {
	CancellableOrders(buys, sells []adapter.Order, target decimal.Decimal) []adapter.Order
	NewOrders(buys, sells []adapter.Order, buyBalance, sellBalance, target decimal.Decimal) []adapter.NewOrder
}

// PolicyProvider yields the policy to evaluate in the current tick.
type PolicyProvider interface {
	Current(ctx context.Context) (Policy, error)
}

// PolicyFunc adapts a function to PolicyProvider.
type PolicyFunc func(ctx context.Context) (Policy, error)

func (f PolicyFunc) Current(ctx context.Context) (Policy, error) {
	return f(ctx)
}

// StaticPolicy always returns the same policy.
func StaticPolicy(p Policy) PolicyProvider {
	return PolicyFunc(func(context.Context) (Policy, error) {
		return p, nil
	})
}

// OrderBook is the cached venue state plus asynchronous order operations.
type OrderBook interface {
	Snapshot() (adapter.Snapshot, error)
	CancelOrders(orders []adapter.Order) error
	PlaceOrder(place orderbook.PlaceFunc) error
	CancelAllOrders(ctx context.Context) error
}

var _ OrderBook = (*orderbook.Manager)(nil)

type Keeper struct {
	venue      venue.OrderBook
	book       OrderBook
	policies   PolicyProvider
	price      feed.PriceSource
	accountant Accountant
	logger     *zap.Logger
	metrics    *obs.Metrics
}

func New(v venue.OrderBook, book OrderBook, policies PolicyProvider, price feed.PriceSource, logger *zap.Logger, metrics *obs.Metrics) (*Keeper, error) {
	if v == nil || book == nil || policies == nil || price == nil {
		return nil, exception.ErrNilInstance
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Keeper{
		venue:      v,
		book:       book,
		policies:   policies,
		price:      price,
		accountant: NewAccountant(v.Profile()),
		logger:     logger.Named("keeper"),
		metrics:    metrics,
	}, nil
}

// Tick runs one reconciliation pass. Cancellation always takes precedence
// over placement, and nothing is placed while an earlier operation is
// unresolved. While placements are in flight nothing is cancelled either.
// A returned error aborts only this tick.
func (k *Keeper) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		k.metrics.ObserveTick(time.Since(start))
	}()
	k.metrics.Inc(obs.CounterTick)

	policy, err := k.policies.Current(ctx)
	if err != nil {
		k.metrics.Inc(obs.CounterTickFailed)
		return errors.Wrap(err, "read policy")
	}

	snap, err := k.book.Snapshot()
	if err != nil {
		k.metrics.Inc(obs.CounterTickFailed)
		return errors.Wrap(err, "read order book")
	}

	target, err := k.price.Price(ctx)
	if err != nil {
		if errors.Is(err, exception.ErrStaleFeed) || errors.Is(err, exception.ErrFeedUnavailable) {
			k.metrics.Inc(obs.CounterStaleFeed)
			k.logger.Warn("no_target_price", zap.Error(err))
			return nil
		}
		k.metrics.Inc(obs.CounterTickFailed)
		return errors.Wrap(err, "read target price")
	}

	// Placements still in flight are missing from the snapshot, so the policy
	// would judge bands on a partial view.
	if snap.OrdersBeingPlaced {
		k.gated(snap)
		return nil
	}

	buys := adapter.BuyOrders(snap.Orders)
	sells := adapter.SellOrders(snap.Orders)

	if cancellable := policy.CancellableOrders(buys, sells, target); len(cancellable) > 0 {
		k.metrics.Inc(obs.CounterTickCancelled)
		if err := k.book.CancelOrders(cancellable); err != nil {
			k.metrics.Inc(obs.CounterTickFailed)
			return errors.Wrap(err, "cancel orders")
		}
		return nil
	}

	if !snap.Settled() {
		k.gated(snap)
		return nil
	}

	profile := k.venue.Profile()
	buyBalance := k.accountant.Available(snap.Balances, buys, profile.BuyToken())
	sellBalance := k.accountant.Available(snap.Balances, sells, profile.SellToken())

	for _, order := range policy.NewOrders(buys, sells, buyBalance, sellBalance, target) {
		sub := NewSubmission(k.venue, order, k.logger, k.metrics)
		if err := k.book.PlaceOrder(sub.Run); err != nil {
			k.metrics.Inc(obs.CounterPlacementFailed)
			k.logger.Warn("schedule_placement_failed",
				zap.Stringer("submission_id", sub.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (k *Keeper) gated(snap adapter.Snapshot) {
	k.metrics.Inc(obs.CounterTickGated)
	k.logger.Debug("order_book_in_progress",
		zap.Bool("placing", snap.OrdersBeingPlaced),
		zap.Bool("cancelling", snap.OrdersBeingCancelled),
		zap.NamedError("reason", exception.ErrUnconfirmedState),
	)
}

// Shutdown cancels every resting order once, best effort.
func (k *Keeper) Shutdown(ctx context.Context) error {
	k.logger.Info("cancelling_all_orders")
	return errors.Wrap(k.book.CancelAllOrders(ctx), "cancel all orders")
}
