package feed

import (
	"mmkeeper/internal/errors"
	"mmkeeper/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Spread is the margin the first band on each side should be centred on.
type Spread struct {
	BuySpread  decimal.Decimal `json:"buySpread"`
	SellSpread decimal.Decimal `json:"sellSpread"`
}

// Control switches a side of the book on or off.
type Control struct {
	CanBuy  bool `json:"canBuy"`
	CanSell bool `json:"canSell"`
}

// ReadSpread decodes the latest spread payload. A nil source reports ok=false.
func ReadSpread(src Source) (Spread, bool, error) {
	if src == nil {
		return Spread{}, false, nil
	}

	payload, _, err := src.Latest()
	if err != nil {
		return Spread{}, false, err
	}

	var s Spread
	if err := sonic.Unmarshal(payload, &s); err != nil {
		return Spread{}, false, errors.Wrap(exception.ErrFeedUnavailable, err.Error())
	}

	return s, true, nil
}

// ReadControl decodes the latest control payload. Missing sources allow both sides.
func ReadControl(src Source) (Control, error) {
	allowAll := Control{CanBuy: true, CanSell: true}
	if src == nil {
		return allowAll, nil
	}

	payload, _, err := src.Latest()
	if err != nil {
		return allowAll, err
	}

	c := allowAll
	if err := sonic.Unmarshal(payload, &c); err != nil {
		return allowAll, errors.Wrap(exception.ErrFeedUnavailable, err.Error())
	}

	return c, nil
}
