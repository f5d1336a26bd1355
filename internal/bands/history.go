package bands

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type placement struct {
	at     time.Time
	sell   bool
	amount decimal.Decimal
}

// History remembers how much was placed per side so band limits can be enforced
// across ticks.
type History struct {
	mu      sync.Mutex
	records []placement
	now     func() time.Time
	keep    time.Duration
}

func NewHistory() *History {
	return &History{now: time.Now, keep: 24 * time.Hour}
}

func (h *History) record(sell bool, amount decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	h.records = append(h.records, placement{at: now, sell: sell, amount: amount})
	h.prune(now)
}

// placed sums the amount placed on a side since cutoff.
func (h *History) placed(sell bool, since time.Time) decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := decimal.Zero
	for _, r := range h.records {
		if r.sell == sell && r.at.After(since) {
			total = total.Add(r.amount)
		}
	}
	return total
}

// prune must be called with mu held.
func (h *History) prune(now time.Time) {
	cutoff := now.Add(-h.keep)
	i := 0
	for i < len(h.records) && h.records[i].at.Before(cutoff) {
		i++
	}
	h.records = h.records[i:]
}

// remaining is what the limits still allow on a side. ok is false when the side is unlimited.
func (h *History) remaining(sell bool, limits []LimitConfig) (decimal.Decimal, bool) {
	if h == nil || len(limits) == 0 {
		return decimal.Zero, false
	}

	now := h.now()
	var out decimal.Decimal
	for i, l := range limits {
		if d := time.Duration(l.Period); d > h.keep {
			h.mu.Lock()
			h.keep = d
			h.mu.Unlock()
		}

		left := l.Amount.Sub(h.placed(sell, now.Add(-time.Duration(l.Period))))
		if i == 0 || left.LessThan(out) {
			out = left
		}
	}

	return decimal.Max(out, decimal.Zero), true
}
