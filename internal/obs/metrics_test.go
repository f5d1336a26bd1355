package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Inc(CounterTick)
	m.Inc(CounterTick)
	m.Add(CounterPlacementSubmitted, 3)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.Counts["tick"])
	assert.Equal(t, uint64(3), snap.Counts["placement_submitted"])
	assert.NotContains(t, snap.Counts, "tick_failed")
	assert.Equal(t, uint64(2), m.Count(CounterTick))
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.Inc(CounterTick)
	m.ObserveTick(time.Second)
	assert.Equal(t, uint64(0), m.Count(CounterTick))
	assert.Empty(t, m.Snapshot().Counts)
}

func TestLatencyStats(t *testing.T) {
	var l LatencyStats
	l.Observe(10 * time.Millisecond)
	l.Observe(30 * time.Millisecond)
	l.Observe(-time.Millisecond)

	snap := l.Snapshot()
	assert.Equal(t, uint64(2), snap.Count)
	assert.Equal(t, 10*time.Millisecond, snap.Min)
	assert.Equal(t, 30*time.Millisecond, snap.Max)
	assert.Equal(t, 20*time.Millisecond, snap.Avg)
}

func TestStatusServerMetrics(t *testing.T) {
	m := NewMetrics()
	m.Inc(CounterTickGated)
	s := NewStatusServer("127.0.0.1:0", m, zap.NewNop())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(1), snap.Counts["tick_gated"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestStatusServerPrometheus(t *testing.T) {
	m := NewMetrics()
	m.Inc(CounterTick)
	m.Inc(CounterTick)
	m.ObserveRefresh(250 * time.Millisecond)
	s := NewStatusServer("127.0.0.1:0", m, zap.NewNop())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `mmkeeper_events_total{event="tick"} 2`)
	assert.Contains(t, body, `mmkeeper_events_total{event="stale_feed"} 0`)
	assert.Contains(t, body, `mmkeeper_latency_observations_total{op="refresh"} 1`)
	assert.Contains(t, body, `mmkeeper_latency_seconds{op="refresh",stat="max"} 0.25`)
}

func TestStatusServerCORS(t *testing.T) {
	s := NewStatusServer("127.0.0.1:0", NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
