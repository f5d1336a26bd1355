package feed

import (
	"context"
	"testing"
	"time"

	"mmkeeper/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stampedSource struct {
	payload []byte
	at      time.Time
	err     error
}

func (s stampedSource) Latest() ([]byte, time.Time, error) {
	return s.payload, s.at, s.err
}

func TestFixedPrice(t *testing.T) {
	p, err := Fixed(decimal.RequireFromString("123.45")).Price(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "123.45", p.String())
}

func TestPriceDecoding(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr error
	}{
		{name: "number", payload: `{"price": 101.5}`, want: "101.5"},
		{name: "string", payload: `{"price": "99"}`, want: "99"},
		{name: "zero", payload: `{"price": 0}`, wantErr: exception.ErrFeedUnavailable},
		{name: "garbage", payload: `nope`, wantErr: exception.ErrFeedUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Price{Source: Static(tc.payload)}.Price(t.Context())
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.String())
		})
	}
}

func TestExpiring(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	src := stampedSource{payload: []byte(`{"price":1}`), at: now.Add(-2 * time.Minute)}

	fresh := NewExpiring(src, 3*time.Minute)
	fresh.now = func() time.Time { return now }
	_, _, err := fresh.Latest()
	assert.NoError(t, err)

	stale := NewExpiring(src, time.Minute)
	stale.now = func() time.Time { return now }
	_, _, err = stale.Latest()
	assert.ErrorIs(t, err, exception.ErrStaleFeed)

	_, err = Price{Source: stale}.Price(t.Context())
	assert.ErrorIs(t, err, exception.ErrStaleFeed)
}

func TestPriceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := Fixed(decimal.NewFromInt(1)).Price(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWebSocketUnavailableUntilFirstMessage(t *testing.T) {
	ws, err := NewWebSocket("ws://127.0.0.1:1/feed", zap.NewNop())
	require.NoError(t, err)

	_, _, err = ws.Latest()
	assert.ErrorIs(t, err, exception.ErrFeedUnavailable)

	require.NoError(t, ws.handle(t.Context(), []byte(`{"price":"5"}`)))
	p, err := Price{Source: ws}.Price(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "5", p.String())
}

func TestParsePriceSource(t *testing.T) {
	src, ws, err := ParsePriceSource("fixed:250", time.Minute, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, ws)
	p, err := src.Price(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "250", p.String())

	_, ws, err = ParsePriceSource("wss://example.invalid/price", time.Minute, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, ws)

	_, _, err = ParsePriceSource("fixed:-1", time.Minute, zap.NewNop())
	assert.ErrorIs(t, err, exception.ErrFatalConfig)

	_, _, err = ParsePriceSource("http://x", time.Minute, zap.NewNop())
	assert.ErrorIs(t, err, exception.ErrFatalConfig)
}

func TestReadSpreadAndControl(t *testing.T) {
	s, ok, err := ReadSpread(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, s.BuySpread.IsZero())

	s, ok, err = ReadSpread(Static(`{"buySpread":"0.01","sellSpread":0.02}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0.01", s.BuySpread.String())
	assert.Equal(t, "0.02", s.SellSpread.String())

	c, err := ReadControl(nil)
	require.NoError(t, err)
	assert.Equal(t, Control{CanBuy: true, CanSell: true}, c)

	c, err = ReadControl(Static(`{"canBuy":false}`))
	require.NoError(t, err)
	assert.Equal(t, Control{CanBuy: false, CanSell: true}, c)
}
