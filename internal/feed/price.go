package feed

import (
	"context"
	"strings"
	"time"

	"mmkeeper/internal/errors"
	"mmkeeper/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceSource produces the keeper's target price.
type PriceSource interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// Price decodes {"price": ...} payloads from a Source.
type Price struct {
	Source Source
}

type pricePayload struct {
	Price decimal.Decimal `json:"price"`
}

func (p Price) Price(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	payload, _, err := p.Source.Latest()
	if err != nil {
		return decimal.Zero, err
	}

	var v pricePayload
	if err := sonic.Unmarshal(payload, &v); err != nil {
		return decimal.Zero, errors.Wrap(exception.ErrFeedUnavailable, err.Error())
	}

	if !v.Price.IsPositive() {
		return decimal.Zero, errors.Wrapf(exception.ErrFeedUnavailable, "non-positive price %s", v.Price)
	}

	return v.Price, nil
}

// Fixed is a PriceSource that never changes.
func Fixed(price decimal.Decimal) PriceSource {
	return Price{Source: Static(`{"price":"` + price.String() + `"}`)}
}

// ParsePriceSource builds a PriceSource from a flag value: "fixed:<price>" or a
// ws:// / wss:// URL. WebSocket feeds are returned so the caller can run them.
func ParsePriceSource(raw string, expiry time.Duration, logger *zap.Logger) (PriceSource, *WebSocket, error) {
	switch {
	case strings.HasPrefix(raw, "fixed:"):
		price, err := decimal.NewFromString(strings.TrimPrefix(raw, "fixed:"))
		if err != nil || !price.IsPositive() {
			return nil, nil, errors.Wrapf(exception.ErrFatalConfig, "invalid fixed price %q", raw)
		}
		return Fixed(price), nil, nil
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
		ws, err := NewWebSocket(raw, logger)
		if err != nil {
			return nil, nil, err
		}
		return Price{Source: NewExpiring(ws, expiry)}, ws, nil
	default:
		return nil, nil, errors.Wrapf(exception.ErrFatalConfig, "unsupported price feed %q", raw)
	}
}
