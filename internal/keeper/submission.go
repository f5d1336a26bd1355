package keeper

import (
	"context"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/errors"
	"mmkeeper/internal/obs"
	"mmkeeper/internal/venue"
	"mmkeeper/pkg/exception"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Submission places exactly one order. It holds its own copy of the order so a
// job scheduled from a loop can never observe a later iteration's values.
type Submission struct {
	ID    uuid.UUID
	Order adapter.NewOrder

	venue   venue.OrderBook
	logger  *zap.Logger
	metrics *obs.Metrics
	now     func() time.Time
}

func NewSubmission(v venue.OrderBook, order adapter.NewOrder, logger *zap.Logger, metrics *obs.Metrics) Submission {
	if logger == nil {
		logger = zap.NewNop()
	}

	return Submission{
		ID:      uuid.New(),
		Order:   order,
		venue:   v,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run sends the order. Failures are logged, counted and returned wrapped in
// exception.ErrSubmissionFailure; the order is dropped for this tick.
func (s Submission) Run(ctx context.Context) (adapter.Order, error) {
	profile := s.venue.Profile()
	pair := profile.Pair()
	price := profile.RoundPrice(s.Order.Price)
	amount := s.Order.Amount()

	logger := s.logger.With(
		zap.Stringer("submission_id", s.ID),
		zap.Stringer("side", s.Order.Side),
		zap.Stringer("price", price),
		zap.Stringer("amount", amount),
	)

	id, err := s.venue.PlaceOrder(ctx, pair, s.Order.Side, price, amount)
	if err == nil && id == "" {
		err = exception.ErrOrderEmptyResponseID
	}
	if err != nil {
		s.metrics.Inc(obs.CounterPlacementFailed)
		logger.Warn("placement_failed", zap.Error(err))
		return adapter.Order{}, errors.Mark(err, exception.ErrSubmissionFailure)
	}

	logger.Info("placed", zap.String("order_id", id))
	return adapter.Order{
		ID:       id,
		Pair:     pair,
		Side:     s.Order.Side,
		Price:    price,
		Amount:   amount,
		PlacedAt: s.now(),
	}, nil
}
