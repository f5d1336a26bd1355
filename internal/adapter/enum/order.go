package enum

import "strings"

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) IsSell() bool {
	return s == OrderSideSell
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseOrderSide accepts "buy"/"sell" in any case. Unknown input returns an unavailable side.
func ParseOrderSide(s string) OrderSide {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "bid":
		return OrderSideBuy
	case "sell", "ask":
		return OrderSideSell
	default:
		return _order_side_beg
	}
}

// SymbolCase is how a venue spells pairs and currencies.
type SymbolCase uint8

const (
	SymbolCaseUpper SymbolCase = iota
	SymbolCaseLower
)

func (c SymbolCase) Apply(s string) string {
	if c == SymbolCaseLower {
		return strings.ToLower(s)
	}

	return strings.ToUpper(s)
}
