package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsDesc = prometheus.NewDesc(
		"mmkeeper_events_total",
		"Keeper events by kind.",
		[]string{"event"}, nil,
	)
	latencyDesc = prometheus.NewDesc(
		"mmkeeper_latency_seconds",
		"Latency summary of keeper operations.",
		[]string{"op", "stat"}, nil,
	)
	latencyCountDesc = prometheus.NewDesc(
		"mmkeeper_latency_observations_total",
		"Observed operations.",
		[]string{"op"}, nil,
	)
)

// Collector exposes Metrics to a prometheus registry without copying them
// into prometheus types on the hot path.
type Collector struct {
	metrics *Metrics
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(metrics *Metrics) *Collector {
	return &Collector{metrics: metrics}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- eventsDesc
	ch <- latencyDesc
	ch <- latencyCountDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for i := Counter(0); i < _counter_end; i++ {
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(c.metrics.Count(i)), i.String())
	}

	snap := c.metrics.Snapshot()
	for op, l := range map[string]LatencySnapshot{
		"tick":    snap.TickLatency,
		"refresh": snap.RefreshLatency,
		"confirm": snap.ConfirmLatency,
	} {
		ch <- prometheus.MustNewConstMetric(latencyCountDesc, prometheus.CounterValue, float64(l.Count), op)
		ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, l.Min.Seconds(), op, "min")
		ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, l.Max.Seconds(), op, "max")
		ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, l.Avg.Seconds(), op, "avg")
	}
}
