package obs

import (
	"sync/atomic"
	"time"
)

// Counter identifies a keeper event counter.
type Counter uint8

const (
	CounterTick Counter = iota
	CounterTickFailed
	CounterTickCancelled
	CounterTickGated
	CounterStaleFeed
	CounterPlacementSubmitted
	CounterPlacementFailed
	CounterCancellationSubmitted
	CounterCancellationFailed
	CounterRefreshFailed
	CounterLiquidityAdded
	CounterLiquidityRemoved
	CounterLiquidityFailed
	_counter_end
)

var counterNames = [...]string{
	CounterTick:                  "tick",
	CounterTickFailed:            "tick_failed",
	CounterTickCancelled:         "tick_cancelled",
	CounterTickGated:             "tick_gated",
	CounterStaleFeed:             "stale_feed",
	CounterPlacementSubmitted:    "placement_submitted",
	CounterPlacementFailed:       "submission_failed",
	CounterCancellationSubmitted: "cancellation_submitted",
	CounterCancellationFailed:    "cancellation_failed",
	CounterRefreshFailed:         "refresh_failed",
	CounterLiquidityAdded:        "liquidity_added",
	CounterLiquidityRemoved:      "liquidity_removed",
	CounterLiquidityFailed:       "liquidity_failed",
}

func (c Counter) String() string {
	if c < _counter_end {
		return counterNames[c]
	}
	return "unknown"
}

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	counts [_counter_end]uint64

	tickLatency    LatencyStats
	refreshLatency LatencyStats
	confirmLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Counts         map[string]uint64 `json:"counts"`
	TickLatency    LatencySnapshot   `json:"tickLatency"`
	RefreshLatency LatencySnapshot   `json:"refreshLatency"`
	ConfirmLatency LatencySnapshot   `json:"confirmLatency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments c. A nil receiver is a no-op so callers may leave metrics unset.
func (m *Metrics) Inc(c Counter) {
	m.Add(c, 1)
}

// Add increments c by n.
func (m *Metrics) Add(c Counter, n uint64) {
	if m == nil || c >= _counter_end {
		return
	}
	atomic.AddUint64(&m.counts[c], n)
}

// Count returns the current value of c.
func (m *Metrics) Count(c Counter) uint64 {
	if m == nil || c >= _counter_end {
		return 0
	}
	return atomic.LoadUint64(&m.counts[c])
}

// ObserveTick measures one reconciliation or rebalancing tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickLatency.Observe(d)
}

// ObserveRefresh measures one order book refresh.
func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshLatency.Observe(d)
}

// ObserveConfirm measures an on-chain confirmation wait.
func (m *Metrics) ObserveConfirm(d time.Duration) {
	if m == nil {
		return
	}
	m.confirmLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counts := make(map[string]uint64)
	for i := range m.counts {
		if v := atomic.LoadUint64(&m.counts[i]); v > 0 {
			counts[Counter(i).String()] = v
		}
	}
	return Snapshot{
		Counts:         counts,
		TickLatency:    m.tickLatency.Snapshot(),
		RefreshLatency: m.refreshLatency.Snapshot(),
		ConfirmLatency: m.confirmLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
