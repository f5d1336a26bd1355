package adapter

import (
	"time"

	"mmkeeper/internal/adapter/enum"

	"github.com/shopspring/decimal"
)

// Order is a resting order as the venue reports it.
type Order struct {
	ID           string
	Pair         string
	Side         enum.OrderSide
	Price        decimal.Decimal
	Amount       decimal.Decimal
	FilledAmount decimal.Decimal
	PlacedAt     time.Time
}

func (o Order) IsSell() bool {
	return o.Side.IsSell()
}

// Remaining is the unfilled base amount, never negative.
func (o Order) Remaining() decimal.Decimal {
	left := o.Amount.Sub(o.FilledAmount)
	if left.IsNegative() {
		return decimal.Zero
	}

	return left
}

// PayAmount is the part of the order still consuming funds, denominated in the
// currency the order pays with: base for sells, quote for buys.
func (o Order) PayAmount() decimal.Decimal {
	if o.IsSell() {
		return o.Remaining()
	}

	return o.Remaining().Mul(o.Price)
}

// BuyOrders returns every order that is not a sell, preserving order.
func BuyOrders(orders []Order) []Order {
	return filterSide(orders, false)
}

// SellOrders returns the sell side of orders, preserving order.
func SellOrders(orders []Order) []Order {
	return filterSide(orders, true)
}
