package liquidity

import (
	"context"
	"errors"
	"testing"
	"time"

	"mmkeeper/internal/feed"
	"mmkeeper/internal/obs"
	"mmkeeper/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		reference   string
		pool        string
		hasPosition bool
		want        State
	}{
		{name: "drifted with position", reference: "100", pool: "102", hasPosition: true, want: StateNeedsRemove},
		{name: "drifted without position", reference: "100", pool: "102", hasPosition: false, want: StateBalanced},
		{name: "close without position", reference: "100", pool: "100.5", hasPosition: false, want: StateNeedsAdd},
		{name: "close with position", reference: "100", pool: "100.5", hasPosition: true, want: StateBalanced},
		{name: "exactly on threshold", reference: "100", pool: "101", hasPosition: false, want: StateBalanced},
		{name: "pool below reference", reference: "100", pool: "97", hasPosition: true, want: StateNeedsRemove},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(d(tc.reference), d(tc.pool), d("1"), tc.hasPosition))
		})
	}
}

type fakePool struct {
	rate     decimal.Decimal
	base     decimal.Decimal
	quote    decimal.Decimal
	position decimal.Decimal

	addAmount    decimal.Decimal
	addMin       decimal.Decimal
	removeShares decimal.Decimal
	adds         int
	removes      int

	submitErr  error
	confirmErr error
	blockWait  bool
}

func (p *fakePool) ExchangeRate(context.Context) (decimal.Decimal, error) { return p.rate, nil }

func (p *fakePool) Balances(context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return p.base, p.quote, nil
}

func (p *fakePool) Position(context.Context) (decimal.Decimal, error) { return p.position, nil }

func (p *fakePool) AddLiquidity(_ context.Context, amount, minLiquidity decimal.Decimal) (string, error) {
	p.adds++
	p.addAmount, p.addMin = amount, minLiquidity
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return "0xadd", nil
}

func (p *fakePool) RemoveLiquidity(_ context.Context, shares decimal.Decimal) (string, error) {
	p.removes++
	p.removeShares = shares
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return "0xremove", nil
}

func (p *fakePool) WaitConfirmed(ctx context.Context, _ string) error {
	if p.blockWait {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.confirmErr
}

func newRebalancer(t *testing.T, pool Pool, reference string, cfg Config) (*Rebalancer, *obs.Metrics) {
	t.Helper()
	m := obs.NewMetrics()
	r, err := NewRebalancer(pool, feed.Fixed(d(reference)), cfg, zap.NewNop(), m)
	require.NoError(t, err)
	return r, m
}

func TestTickAddsFromEmptyPosition(t *testing.T) {
	pool := &fakePool{rate: d("100.5"), base: d("10"), quote: d("201")}
	r, m := newRebalancer(t, pool, "100", DefaultConfig())

	state, outcome, err := r.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateNeedsAdd, state)
	assert.Equal(t, OutcomeConfirmed, outcome)

	// min(10 - 0.02, 0.95 * 201 / 100.5) = 1.9
	assert.Equal(t, "1.9", pool.addAmount.String())
	assert.Equal(t, "0.95", pool.addMin.String())
	assert.Equal(t, uint64(1), m.Count(obs.CounterLiquidityAdded))
}

func TestTickAddLimitedByGasReserve(t *testing.T) {
	pool := &fakePool{rate: d("100"), base: d("1.02"), quote: d("100000")}
	r, _ := newRebalancer(t, pool, "100", DefaultConfig())

	_, _, err := r.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "1", pool.addAmount.String())
}

func TestTickNotEnoughTokens(t *testing.T) {
	pool := &fakePool{rate: d("100"), base: d("0.01"), quote: d("1000")}
	r, _ := newRebalancer(t, pool, "100", DefaultConfig())

	state, outcome, err := r.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateNeedsAdd, state)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, pool.adds)
}

func TestTickRemovesWholePosition(t *testing.T) {
	pool := &fakePool{rate: d("102"), position: d("3.7")}
	r, m := newRebalancer(t, pool, "100", DefaultConfig())

	state, outcome, err := r.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateNeedsRemove, state)
	assert.Equal(t, OutcomeConfirmed, outcome)
	assert.Equal(t, "3.7", pool.removeShares.String())
	assert.Equal(t, uint64(1), m.Count(obs.CounterLiquidityRemoved))
}

func TestTickBalancedDoesNothing(t *testing.T) {
	pool := &fakePool{rate: d("100.5"), position: d("1")}
	r, _ := newRebalancer(t, pool, "100", DefaultConfig())

	state, outcome, err := r.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateBalanced, state)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, pool.adds+pool.removes)
}

func TestTickFailuresAreNotFatal(t *testing.T) {
	tests := []struct {
		name string
		pool *fakePool
	}{
		{name: "reverted", pool: &fakePool{rate: d("102"), position: d("1"), confirmErr: exception.ErrLiquidityTxReverted}},
		{name: "submit rejected", pool: &fakePool{rate: d("102"), position: d("1"), submitErr: errors.New("nonce too low")}},
		{name: "timeout", pool: &fakePool{rate: d("102"), position: d("1"), blockWait: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ConfirmTimeout = 20 * time.Millisecond
			r, m := newRebalancer(t, tc.pool, "100", cfg)

			state, outcome, err := r.Tick(t.Context())
			require.NoError(t, err)
			assert.Equal(t, StateNeedsRemove, state)
			assert.Equal(t, OutcomeFailed, outcome)
			assert.Equal(t, uint64(1), m.Count(obs.CounterLiquidityFailed))
		})
	}
}

type staleSource struct{}

func (staleSource) Latest() ([]byte, time.Time, error) {
	return nil, time.Time{}, exception.ErrStaleFeed
}

func TestTickWithoutReferencePrice(t *testing.T) {
	pool := &fakePool{rate: d("102"), position: d("1")}
	m := obs.NewMetrics()
	r, err := NewRebalancer(pool, feed.Price{Source: staleSource{}}, DefaultConfig(), zap.NewNop(), m)
	require.NoError(t, err)

	state, outcome, err := r.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateBalanced, state)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, pool.removes)
	assert.Equal(t, uint64(1), m.Count(obs.CounterStaleFeed))
}

func TestNewRebalancerRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Percentage = decimal.Zero
	_, err := NewRebalancer(&fakePool{}, feed.Fixed(d("1")), cfg, nil, nil)
	assert.ErrorIs(t, err, exception.ErrFatalConfig)
}
