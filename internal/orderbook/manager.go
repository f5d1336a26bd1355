// Package orderbook caches the venue's open orders and balances and tracks the
// placements and cancellations still in flight on the worker pool.
package orderbook

import (
	"context"
	"sync"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/errors"
	"mmkeeper/internal/obs"
	"mmkeeper/internal/order"
	"mmkeeper/internal/venue"
	"mmkeeper/pkg/exception"

	"go.uber.org/zap"
)

const (
	defaultRefreshInterval = 3 * time.Second
	defaultSweepAttempts   = 3
	defaultPlacementWait   = 10 * time.Second
)

// PlaceFunc submits one order and returns it as the venue now knows it.
type PlaceFunc func(ctx context.Context) (adapter.Order, error)

// Reporter receives the open orders on every history interval.
type Reporter interface {
	Report(ctx context.Context, pair string, buys, sells []adapter.Order) error
}

type Option func(*Manager)

// WithRefreshInterval overrides how often the venue state is fetched.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshEvery = d
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(metrics *obs.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithHistory reports open orders to r every interval.
func WithHistory(r Reporter, every time.Duration) Option {
	return func(m *Manager) {
		if r != nil && every > 0 {
			m.reporter = r
			m.reportEvery = every
		}
	}
}

// Manager holds the last fetched venue state and overlays the effect of
// operations that the venue may not reflect yet.
type Manager struct {
	venue   venue.OrderBook
	pool    *order.Pool
	logger  *zap.Logger
	metrics *obs.Metrics
	pair    string

	refreshEvery time.Duration
	reporter     Reporter
	reportEvery  time.Duration

	mu         sync.Mutex
	loaded     bool
	orders     []adapter.Order
	balances   adapter.Balances
	placing    int
	placed     map[string]adapter.Order
	cancelling map[string]struct{}
	cancelled  map[string]struct{}
	refreshes  uint64
	refreshed  chan struct{}
}

func NewManager(v venue.OrderBook, pool *order.Pool, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if v == nil || pool == nil {
		return nil, exception.ErrNilInstance
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		venue:        v,
		pool:         pool,
		logger:       logger.Named("orderbook"),
		pair:         v.Profile().Pair(),
		refreshEvery: defaultRefreshInterval,
		placed:       make(map[string]adapter.Order),
		cancelling:   make(map[string]struct{}),
		cancelled:    make(map[string]struct{}),
		refreshed:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Run refreshes the venue state until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.refreshEvery)
	defer ticker.Stop()

	var lastReport time.Time
	for {
		if err := m.Refresh(ctx); err != nil {
			m.metrics.Inc(obs.CounterRefreshFailed)
			m.logger.Warn("refresh_failed", zap.Error(err))
		}

		if m.reporter != nil && time.Since(lastReport) >= m.reportEvery {
			lastReport = time.Now()
			m.report(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh fetches orders and balances once. Operations that completed before
// the fetch started are assumed visible in its result and stop being overlaid.
func (m *Manager) Refresh(ctx context.Context) error {
	start := time.Now()
	m.mu.Lock()
	placedBefore := make(map[string]struct{}, len(m.placed))
	for id := range m.placed {
		placedBefore[id] = struct{}{}
	}
	cancelledBefore := make(map[string]struct{}, len(m.cancelled))
	for id := range m.cancelled {
		cancelledBefore[id] = struct{}{}
	}
	m.mu.Unlock()

	orders, err := m.venue.OpenOrders(ctx, m.pair)
	if err != nil {
		return errors.Wrap(err, "fetch open orders")
	}

	balances, err := m.venue.Balances(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch balances")
	}
	balances = m.venue.Profile().Normalize(balances)

	m.mu.Lock()
	for id := range placedBefore {
		delete(m.placed, id)
	}
	for id := range cancelledBefore {
		delete(m.cancelled, id)
	}
	m.orders = orders
	m.balances = balances
	m.loaded = true
	m.refreshes++
	close(m.refreshed)
	m.refreshed = make(chan struct{})
	m.mu.Unlock()

	m.metrics.ObserveRefresh(time.Since(start))
	m.logger.Debug("refreshed",
		zap.Int("orders", len(orders)),
		zap.Duration("took", time.Since(start)),
	)

	return nil
}

// Snapshot returns a copy of the current state with in-flight operations applied.
func (m *Manager) Snapshot() (adapter.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return adapter.Snapshot{}, exception.ErrOrderBookNotReady
	}

	known := make(map[string]struct{}, len(m.orders))
	orders := make([]adapter.Order, 0, len(m.orders)+len(m.placed))
	for _, o := range m.orders {
		known[o.ID] = struct{}{}
		if m.hidden(o.ID) {
			continue
		}
		orders = append(orders, o)
	}

	for id, o := range m.placed {
		if _, ok := known[id]; ok || m.hidden(id) {
			continue
		}
		orders = append(orders, o)
	}

	return adapter.Snapshot{
		Orders:               orders,
		Balances:             m.balances.Clone(),
		OrdersBeingPlaced:    m.placing > 0,
		OrdersBeingCancelled: len(m.cancelling) > 0,
	}, nil
}

func (m *Manager) hidden(id string) bool {
	if _, ok := m.cancelling[id]; ok {
		return true
	}
	_, ok := m.cancelled[id]
	return ok
}

// PlaceOrder schedules place on the worker pool and raises the placing flag until it finishes.
func (m *Manager) PlaceOrder(place PlaceFunc) error {
	if place == nil {
		return exception.ErrOrderInvalidRequest
	}

	m.mu.Lock()
	m.placing++
	m.mu.Unlock()

	err := m.pool.Handle(func(ctx context.Context) {
		o, err := place(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.placing--
		if err != nil {
			return
		}
		m.placed[o.ID] = o
	})
	if err != nil {
		m.mu.Lock()
		m.placing--
		m.mu.Unlock()
		return errors.Wrap(err, "schedule placement")
	}

	m.metrics.Inc(obs.CounterPlacementSubmitted)
	return nil
}

// CancelOrders schedules one cancellation per order.
func (m *Manager) CancelOrders(orders []adapter.Order) error {
	for _, o := range orders {
		if err := m.cancelOrder(o); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) cancelOrder(o adapter.Order) error {
	id := o.ID

	m.mu.Lock()
	if _, ok := m.cancelling[id]; ok {
		m.mu.Unlock()
		return nil
	}
	m.cancelling[id] = struct{}{}
	m.mu.Unlock()

	err := m.pool.Handle(func(ctx context.Context) {
		err := m.venue.CancelOrder(ctx, id)
		if err != nil {
			m.metrics.Inc(obs.CounterCancellationFailed)
			m.logger.Warn("cancel_failed",
				zap.String("order_id", id),
				zap.Error(errors.Mark(err, exception.ErrSubmissionFailure)),
			)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.cancelling, id)
		if err == nil {
			m.cancelled[id] = struct{}{}
		}
	})
	if err != nil {
		m.mu.Lock()
		delete(m.cancelling, id)
		m.mu.Unlock()
		return errors.Wrapf(err, "schedule cancellation of %s", id)
	}

	m.metrics.Inc(obs.CounterCancellationSubmitted)
	m.logger.Info("cancelling",
		zap.String("order_id", id),
		zap.Stringer("side", o.Side),
		zap.Stringer("price", o.Price),
		zap.Stringer("amount", o.Amount),
	)
	return nil
}

// WaitForRefresh blocks until a refresh that started after the call completes.
func (m *Manager) WaitForRefresh(ctx context.Context) error {
	for range 2 {
		m.mu.Lock()
		ch := m.refreshed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// WaitForPlacements blocks until no placement is in flight.
func (m *Manager) WaitForPlacements(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		m.mu.Lock()
		placing := m.placing
		m.mu.Unlock()
		if placing == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CancelAllOrders is the shutdown sweep. Resting orders are cancelled first,
// then in-flight placements get a bounded share of ctx to land, and whatever
// the venue still lists is cancelled again. It calls the venue directly so it
// does not depend on the worker pool being alive.
func (m *Manager) CancelAllOrders(ctx context.Context) error {
	_, _ = m.sweep(ctx)

	waitCtx, cancel := placementWaitContext(ctx)
	if err := m.WaitForPlacements(waitCtx); err != nil {
		m.logger.Warn("placements_still_in_flight", zap.Error(err))
	}
	cancel()

	for attempt := range defaultSweepAttempts {
		left, err := m.sweep(ctx)
		if err != nil {
			return err
		}
		if left == 0 {
			m.logger.Info("all_orders_cancelled", zap.Int("attempt", attempt))
			return nil
		}
	}

	orders, err := m.venue.OpenOrders(ctx, m.pair)
	if err != nil {
		return errors.Wrap(err, "fetch open orders after sweep")
	}
	if len(orders) > 0 {
		return errors.Wrapf(exception.ErrSubmissionFailure, "%d orders left after sweep", len(orders))
	}
	return nil
}

// sweep cancels every order the venue lists and returns how many it found.
func (m *Manager) sweep(ctx context.Context) (int, error) {
	orders, err := m.venue.OpenOrders(ctx, m.pair)
	if err != nil {
		m.logger.Warn("sweep_fetch_failed", zap.Error(err))
		return 0, errors.Wrap(err, "fetch open orders for sweep")
	}

	for _, o := range orders {
		if err := m.venue.CancelOrder(ctx, o.ID); err != nil {
			m.metrics.Inc(obs.CounterCancellationFailed)
			m.logger.Warn("sweep_cancel_failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return len(orders), nil
}

// placementWaitContext gives the placement wait a third of the time left on
// ctx so the final sweep keeps the rest.
func placementWaitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := defaultPlacementWait
	if deadline, ok := ctx.Deadline(); ok {
		budget = time.Until(deadline) / 3
	}
	return context.WithTimeout(ctx, budget)
}

func (m *Manager) report(ctx context.Context) {
	snap, err := m.Snapshot()
	if err != nil {
		return
	}

	err = m.reporter.Report(ctx, m.pair, adapter.BuyOrders(snap.Orders), adapter.SellOrders(snap.Orders))
	if err != nil {
		m.logger.Warn("history_report_failed", zap.Error(err))
	}
}
