package adapter

import "github.com/samber/lo"

// Snapshot is the venue state as of the latest refresh. It is handed out by value
// and consumed once per tick.
type Snapshot struct {
	Orders               []Order
	Balances             Balances
	OrdersBeingPlaced    bool
	OrdersBeingCancelled bool
}

// Settled reports whether no asynchronous operation is awaiting confirmation.
func (s Snapshot) Settled() bool {
	return !s.OrdersBeingPlaced && !s.OrdersBeingCancelled
}

// Clone returns a deep copy so that callers can never mutate the cached state.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Orders = append([]Order(nil), s.Orders...)
	out.Balances = s.Balances.Clone()
	return out
}

func filterSide(orders []Order, sell bool) []Order {
	return lo.Filter(orders, func(o Order, _ int) bool {
		return o.IsSell() == sell
	})
}
