package bands

import (
	"sort"

	"mmkeeper/internal/adapter"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// band is a BandConfig bound to a side. Buy bands sit below the target price,
// sell bands above it.
type band struct {
	BandConfig
	sell bool
}

func (b band) priceAt(target, margin decimal.Decimal) decimal.Decimal {
	if b.sell {
		return target.Mul(one.Add(margin))
	}
	return target.Mul(one.Sub(margin))
}

func (b band) minPrice(target decimal.Decimal) decimal.Decimal {
	if b.sell {
		return b.priceAt(target, b.MinMargin)
	}
	return b.priceAt(target, b.MaxMargin)
}

func (b band) maxPrice(target decimal.Decimal) decimal.Decimal {
	if b.sell {
		return b.priceAt(target, b.MaxMargin)
	}
	return b.priceAt(target, b.MinMargin)
}

func (b band) avgPrice(target decimal.Decimal) decimal.Decimal {
	return b.priceAt(target, b.AvgMargin)
}

func (b band) includes(o adapter.Order, target decimal.Decimal) bool {
	return o.Price.GreaterThanOrEqual(b.minPrice(target)) && o.Price.LessThanOrEqual(b.maxPrice(target))
}

func (b band) ordersIn(orders []adapter.Order, target decimal.Decimal) []adapter.Order {
	return lo.Filter(orders, func(o adapter.Order, _ int) bool {
		return b.includes(o, target)
	})
}

// excessive returns the orders to cancel so the band total drops to MaxAmount.
// In the innermost band the orders closest to the target go first, in the
// outermost band the furthest, elsewhere the smallest.
func (b band) excessive(orders []adapter.Order, target decimal.Decimal, first, last bool) []adapter.Order {
	in := b.ordersIn(orders, target)
	total := totalAmount(in)
	if total.LessThanOrEqual(b.MaxAmount) {
		return nil
	}

	sort.SliceStable(in, func(i, j int) bool {
		di := in[i].Price.Sub(target).Abs()
		dj := in[j].Price.Sub(target).Abs()
		switch {
		case first:
			return di.LessThan(dj)
		case last:
			return di.GreaterThan(dj)
		default:
			return in[i].PayAmount().LessThan(in[j].PayAmount())
		}
	})

	var out []adapter.Order
	for _, o := range in {
		if total.LessThanOrEqual(b.MaxAmount) {
			break
		}
		out = append(out, o)
		total = total.Sub(o.PayAmount())
	}
	return out
}

func totalAmount(orders []adapter.Order) decimal.Decimal {
	return lo.Reduce(orders, func(acc decimal.Decimal, o adapter.Order, _ int) decimal.Decimal {
		return acc.Add(o.PayAmount())
	}, decimal.Zero)
}
