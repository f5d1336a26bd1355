// Package history persists periodic snapshots of the keeper's open orders.
package history

import (
	"context"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/errors"
	"mmkeeper/internal/orderbook"
	"mmkeeper/pkg/conn"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const batchSize = 100

var _ orderbook.Reporter = (*Reporter)(nil)

// Record is one open order as seen at ReportedAt.
type Record struct {
	ID         uint64          `gorm:"primaryKey"`
	ReportedAt time.Time       `gorm:"index;not null"`
	Pair       string          `gorm:"size:32;index;not null"`
	Side       string          `gorm:"size:4;not null"`
	OrderID    string          `gorm:"size:64;not null"`
	Price      decimal.Decimal `gorm:"type:numeric;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric;not null"`
	Filled     decimal.Decimal `gorm:"type:numeric;not null"`
	PlacedAt   time.Time
}

func (Record) TableName() string {
	return "order_history"
}

type Reporter struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewReporter(client *conn.Client, logger *zap.Logger) (*Reporter, error) {
	if client == nil || client.DB() == nil {
		return nil, errors.Wrap(errors.New("nil database"), "history")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reporter{
		db:     client.DB(),
		logger: logger.Named("history"),
		now:    time.Now,
	}, nil
}

// Migrate creates or updates the history table.
func (r *Reporter) Migrate(ctx context.Context) error {
	return errors.Wrap(r.db.WithContext(ctx).AutoMigrate(&Record{}), "migrate order history")
}

func (r *Reporter) Report(ctx context.Context, pair string, buys, sells []adapter.Order) error {
	records := Records(pair, r.now().UTC(), buys, sells)
	if len(records) == 0 {
		r.logger.Debug("no_open_orders", zap.String("pair", pair))
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&records, batchSize).Error; err != nil {
		return errors.Wrap(err, "insert order history")
	}

	r.logger.Debug("orders_recorded", zap.String("pair", pair), zap.Int("buys", len(buys)), zap.Int("sells", len(sells)))
	return nil
}

// Records flattens buys then sells into rows stamped with at.
func Records(pair string, at time.Time, buys, sells []adapter.Order) []Record {
	toRecord := func(o adapter.Order, _ int) Record {
		return Record{
			ReportedAt: at,
			Pair:       pair,
			Side:       o.Side.String(),
			OrderID:    o.ID,
			Price:      o.Price,
			Amount:     o.Amount,
			Filled:     o.FilledAmount,
			PlacedAt:   o.PlacedAt,
		}
	}

	return append(lo.Map(buys, toRecord), lo.Map(sells, toRecord)...)
}
