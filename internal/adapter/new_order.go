package adapter

import (
	"mmkeeper/internal/adapter/enum"

	"github.com/shopspring/decimal"
)

// NewOrder is policy output that has not been submitted yet.
//
// PayAmount is what the order spends (base for sells, quote for buys) and
// BuyAmount is what it receives.
type NewOrder struct {
	Side      enum.OrderSide
	Price     decimal.Decimal
	PayAmount decimal.Decimal
	BuyAmount decimal.Decimal
}

func (n NewOrder) IsSell() bool {
	return n.Side.IsSell()
}

// Amount is the base amount sent to the venue.
func (n NewOrder) Amount() decimal.Decimal {
	if n.IsSell() {
		return n.PayAmount
	}

	return n.BuyAmount
}
