package liquidity

import (
	"context"
	"time"

	"mmkeeper/internal/errors"
	"mmkeeper/internal/feed"
	"mmkeeper/internal/obs"
	"mmkeeper/pkg/exception"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	// Percentage is the allowed drift between reference and pool price, in percent.
	Percentage decimal.Decimal
	// GasReserve is kept back from the base balance to pay for transactions.
	GasReserve decimal.Decimal
	// QuoteCap is the share of the quote balance a deposit may consume.
	QuoteCap decimal.Decimal
	// MinLiquidityRatio sets the minimum shares accepted as a share of the deposit.
	MinLiquidityRatio decimal.Decimal
	ConfirmTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Percentage:        decimal.NewFromInt(1),
		GasReserve:        decimal.RequireFromString("0.02"),
		QuoteCap:          decimal.RequireFromString("0.95"),
		MinLiquidityRatio: decimal.RequireFromString("0.5"),
		ConfirmTimeout:    10 * time.Minute,
	}
}

type Rebalancer struct {
	pool    Pool
	price   feed.PriceSource
	cfg     Config
	logger  *zap.Logger
	metrics *obs.Metrics
}

func NewRebalancer(pool Pool, price feed.PriceSource, cfg Config, logger *zap.Logger, metrics *obs.Metrics) (*Rebalancer, error) {
	if pool == nil || price == nil {
		return nil, exception.ErrNilInstance
	}

	if !cfg.Percentage.IsPositive() {
		return nil, errors.Wrap(exception.ErrFatalConfig, "percentage must be positive")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Rebalancer{
		pool:    pool,
		price:   price,
		cfg:     cfg,
		logger:  logger.Named("liquidity"),
		metrics: metrics,
	}, nil
}

// Tick decides and, when needed, performs one add or remove, blocking until
// the transaction is confirmed or times out. A failed action is reported in
// the outcome and is not an error; errors mean the tick could not read state.
func (r *Rebalancer) Tick(ctx context.Context) (State, Outcome, error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveTick(time.Since(start))
	}()
	r.metrics.Inc(obs.CounterTick)

	reference, err := r.price.Price(ctx)
	if err != nil {
		if errors.Is(err, exception.ErrStaleFeed) || errors.Is(err, exception.ErrFeedUnavailable) {
			r.metrics.Inc(obs.CounterStaleFeed)
			r.logger.Warn("no_reference_price", zap.Error(err))
			return StateBalanced, OutcomeSkipped, nil
		}
		r.metrics.Inc(obs.CounterTickFailed)
		return StateBalanced, OutcomeSkipped, errors.Wrap(err, "read reference price")
	}

	poolPrice, err := r.pool.ExchangeRate(ctx)
	if err != nil {
		r.metrics.Inc(obs.CounterTickFailed)
		return StateBalanced, OutcomeSkipped, errors.Wrap(err, "read exchange rate")
	}

	position, err := r.pool.Position(ctx)
	if err != nil {
		r.metrics.Inc(obs.CounterTickFailed)
		return StateBalanced, OutcomeSkipped, errors.Wrap(err, "read position")
	}

	state := Decide(reference, poolPrice, r.cfg.Percentage, position.IsPositive())
	r.logger.Info("evaluated",
		zap.Stringer("reference_price", reference),
		zap.Stringer("pool_price", poolPrice),
		zap.Stringer("position", position),
		zap.Stringer("state", state),
	)

	switch state {
	case StateNeedsAdd:
		outcome, err := r.add(ctx, poolPrice)
		return state, outcome, err
	case StateNeedsRemove:
		return state, r.remove(ctx, position), nil
	default:
		return state, OutcomeSkipped, nil
	}
}

// DepositAmount is min(base - gasReserve, quoteCap * quote / poolPrice).
func (r *Rebalancer) DepositAmount(base, quote, poolPrice decimal.Decimal) decimal.Decimal {
	if !poolPrice.IsPositive() {
		return decimal.Zero
	}

	spendable := base.Sub(r.cfg.GasReserve)
	affordable := r.cfg.QuoteCap.Mul(quote).Div(poolPrice)
	return decimal.Min(spendable, affordable)
}

func (r *Rebalancer) add(ctx context.Context, poolPrice decimal.Decimal) (Outcome, error) {
	base, quote, err := r.pool.Balances(ctx)
	if err != nil {
		r.metrics.Inc(obs.CounterTickFailed)
		return OutcomeSkipped, errors.Wrap(err, "read wallet balances")
	}

	amount := r.DepositAmount(base, quote, poolPrice)
	if !amount.IsPositive() {
		r.logger.Info("not_enough_tokens",
			zap.Stringer("base", base),
			zap.Stringer("quote", quote),
		)
		return OutcomeSkipped, nil
	}

	minLiquidity := amount.Mul(r.cfg.MinLiquidityRatio)
	r.logger.Info("adding_liquidity",
		zap.Stringer("amount", amount),
		zap.Stringer("min_liquidity", minLiquidity),
	)

	tx, err := r.pool.AddLiquidity(ctx, amount, minLiquidity)
	outcome := r.confirm(ctx, "add", tx, err)
	if outcome == OutcomeConfirmed {
		r.metrics.Inc(obs.CounterLiquidityAdded)
	}
	r.logPosition(ctx, "after_add")
	return outcome, nil
}

func (r *Rebalancer) remove(ctx context.Context, shares decimal.Decimal) Outcome {
	r.logger.Info("removing_liquidity", zap.Stringer("shares", shares))

	tx, err := r.pool.RemoveLiquidity(ctx, shares)
	outcome := r.confirm(ctx, "remove", tx, err)
	if outcome == OutcomeConfirmed {
		r.metrics.Inc(obs.CounterLiquidityRemoved)
	}
	r.logPosition(ctx, "after_remove")
	return outcome
}

func (r *Rebalancer) confirm(ctx context.Context, action, tx string, submitErr error) Outcome {
	logger := r.logger.With(zap.String("action", action), zap.String("tx", tx))
	if submitErr != nil {
		r.metrics.Inc(obs.CounterLiquidityFailed)
		logger.Warn("liquidity_submit_failed", zap.Error(submitErr))
		return OutcomeFailed
	}

	waitCtx := ctx
	if r.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.cfg.ConfirmTimeout)
		defer cancel()
	}

	start := time.Now()
	err := r.pool.WaitConfirmed(waitCtx, tx)
	r.metrics.ObserveConfirm(time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrap(exception.ErrLiquidityTxTimeout, err.Error())
		}
		r.metrics.Inc(obs.CounterLiquidityFailed)
		logger.Warn("liquidity_failed", zap.Error(err))
		return OutcomeFailed
	}

	logger.Info("liquidity_confirmed")
	return OutcomeConfirmed
}

func (r *Rebalancer) logPosition(ctx context.Context, when string) {
	position, err := r.pool.Position(ctx)
	if err != nil {
		r.logger.Debug("position_unavailable", zap.String("when", when), zap.Error(err))
		return
	}
	r.logger.Info("position", zap.String("when", when), zap.Stringer("shares", position))
}
