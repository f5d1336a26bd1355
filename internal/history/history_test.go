package history

import (
	"context"
	"testing"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/adapter/enum"
	"mmkeeper/pkg/conn"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "postgres://keeper@localhost:5432/orders?sslmode=disable"}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return db
}

func testOrders() ([]adapter.Order, []adapter.Order) {
	placed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	buys := []adapter.Order{{
		ID: "B1", Pair: "ETH-DAI", Side: enum.OrderSideBuy,
		Price: decimal.NewFromInt(99), Amount: decimal.NewFromInt(2), PlacedAt: placed,
	}}
	sells := []adapter.Order{{
		ID: "S1", Pair: "ETH-DAI", Side: enum.OrderSideSell,
		Price: decimal.NewFromInt(101), Amount: decimal.NewFromInt(1), FilledAmount: decimal.RequireFromString("0.5"),
		PlacedAt: placed,
	}}
	return buys, sells
}

func TestRecords(t *testing.T) {
	buys, sells := testOrders()
	at := time.Date(2024, 1, 2, 3, 5, 0, 0, time.UTC)

	records := Records("ETH-DAI", at, buys, sells)
	require.Len(t, records, 2)

	assert.Equal(t, "B1", records[0].OrderID)
	assert.Equal(t, enum.OrderSideBuy.String(), records[0].Side)
	assert.Equal(t, "S1", records[1].OrderID)
	assert.True(t, records[1].Filled.Equal(decimal.RequireFromString("0.5")))
	for _, r := range records {
		assert.Equal(t, at, r.ReportedAt)
		assert.Equal(t, "ETH-DAI", r.Pair)
	}

	assert.Empty(t, Records("ETH-DAI", at, nil, nil))
}

func TestReporter_Report(t *testing.T) {
	db := dryRunDB(t)
	r, err := NewReporter(conn.Wrap(db), nil)
	require.NoError(t, err)

	buys, sells := testOrders()
	require.NoError(t, r.Report(context.Background(), "ETH-DAI", buys, sells))
	require.NoError(t, r.Report(context.Background(), "ETH-DAI", nil, nil))

	records := Records("ETH-DAI", time.Now(), buys, sells)
	stmt := db.Session(&gorm.Session{DryRun: true}).Create(&records).Statement
	assert.Contains(t, stmt.SQL.String(), `INSERT INTO "order_history"`)
}

func TestNewReporter_NilClient(t *testing.T) {
	_, err := NewReporter(nil, nil)
	assert.Error(t, err)
}
