// Package bands implements the band pricing policy: orders are kept within
// margin bands around the target price, each band holding between its minimum
// and maximum amount.
package bands

import (
	"sort"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/adapter/enum"
	"mmkeeper/internal/feed"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Adjustments are the feed-driven tweaks applied on top of the static config.
type Adjustments struct {
	Spread  *feed.Spread
	Control feed.Control
}

// NoAdjustments keeps the config as written with both sides enabled.
func NoAdjustments() Adjustments {
	return Adjustments{Control: feed.Control{CanBuy: true, CanSell: true}}
}

// Bands is the policy for a single tick.
type Bands struct {
	buy        []band
	sell       []band
	buyLimits  []LimitConfig
	sellLimits []LimitConfig
	history    *History
}

// New builds the tick's policy. history may be nil when limits are not used.
func New(cfg Config, adj Adjustments, history *History) *Bands {
	b := &Bands{
		buyLimits:  cfg.BuyLimits,
		sellLimits: cfg.SellLimits,
		history:    history,
	}

	if adj.Control.CanBuy {
		b.buy = sideBands(cfg.BuyBands, false)
	}
	if adj.Control.CanSell {
		b.sell = sideBands(cfg.SellBands, true)
	}

	if adj.Spread != nil {
		shift(b.buy, adj.Spread.BuySpread)
		shift(b.sell, adj.Spread.SellSpread)
	}

	return b
}

func sideBands(cfgs []BandConfig, sell bool) []band {
	out := lo.Map(cfgs, func(c BandConfig, _ int) band {
		return band{BandConfig: c, sell: sell}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinMargin.LessThan(out[j].MinMargin)
	})
	return out
}

// shift moves every band so the innermost one is centred on spread.
func shift(bands []band, spread decimal.Decimal) {
	if len(bands) == 0 {
		return
	}

	delta := spread.Sub(bands[0].AvgMargin)
	for i := range bands {
		bands[i].MinMargin = decimal.Max(bands[i].MinMargin.Add(delta), decimal.Zero)
		bands[i].AvgMargin = decimal.Max(bands[i].AvgMargin.Add(delta), decimal.Zero)
		bands[i].MaxMargin = decimal.Max(bands[i].MaxMargin.Add(delta), decimal.Zero)
	}
}

// CancellableOrders returns orders exceeding a band's maximum plus orders
// outside every band.
func (b *Bands) CancellableOrders(buys, sells []adapter.Order, target decimal.Decimal) []adapter.Order {
	var out []adapter.Order
	out = append(out, excessiveOrders(buys, b.buy, target)...)
	out = append(out, excessiveOrders(sells, b.sell, target)...)
	out = append(out, outsideAnyBand(buys, b.buy, target)...)
	out = append(out, outsideAnyBand(sells, b.sell, target)...)

	return lo.UniqBy(out, func(o adapter.Order) string {
		return o.ID
	})
}

func excessiveOrders(orders []adapter.Order, bands []band, target decimal.Decimal) []adapter.Order {
	var out []adapter.Order
	for i, bd := range bands {
		out = append(out, bd.excessive(orders, target, i == 0, i == len(bands)-1)...)
	}
	return out
}

func outsideAnyBand(orders []adapter.Order, bands []band, target decimal.Decimal) []adapter.Order {
	return lo.Filter(orders, func(o adapter.Order, _ int) bool {
		return !lo.ContainsBy(bands, func(bd band) bool {
			return bd.includes(o, target)
		})
	})
}

// NewOrders tops up every band holding less than its minimum, back to its
// average amount, within the available balance and the side's limits.
func (b *Bands) NewOrders(buys, sells []adapter.Order, buyBalance, sellBalance, target decimal.Decimal) []adapter.NewOrder {
	out := b.newSideOrders(buys, b.buy, b.buyLimits, buyBalance, target, false)
	return append(out, b.newSideOrders(sells, b.sell, b.sellLimits, sellBalance, target, true)...)
}

func (b *Bands) newSideOrders(orders []adapter.Order, bands []band, limits []LimitConfig, balance, target decimal.Decimal, sell bool) []adapter.NewOrder {
	limit, limited := b.history.remaining(sell, limits)

	var out []adapter.NewOrder
	for _, bd := range bands {
		total := totalAmount(bd.ordersIn(orders, target))
		if total.GreaterThanOrEqual(bd.MinAmount) {
			continue
		}

		price := bd.avgPrice(target)
		if !price.IsPositive() {
			continue
		}

		pay := decimal.Min(bd.AvgAmount.Sub(total), balance)
		if limited {
			pay = decimal.Min(pay, limit)
		}

		var receive decimal.Decimal
		if sell {
			receive = pay.Mul(price)
		} else {
			receive = pay.Div(price)
		}

		if !pay.IsPositive() || !receive.IsPositive() || pay.LessThan(bd.DustCutoff) {
			continue
		}

		side := enum.OrderSideBuy
		if sell {
			side = enum.OrderSideSell
		}

		out = append(out, adapter.NewOrder{
			Side:      side,
			Price:     price,
			PayAmount: pay,
			BuyAmount: receive,
		})

		balance = balance.Sub(pay)
		if limited {
			limit = limit.Sub(pay)
		}
		if b.history != nil {
			b.history.record(sell, pay)
		}
	}

	return out
}
