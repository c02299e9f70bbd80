package collector

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/service-autoscaler/internal/resilience"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

func testMetricsConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Window: "5m",
		Queries: config.QueryTemplates{
			CPU:         "cpu:$service:$window",
			Memory:      "mem:$service:$window",
			RequestRate: "rps:$service:$window",
			P95Latency:  "p95:$service:$window",
			ErrorRate:   "err:$service:$window",
		},
	}
}

func seedAll(q *StaticQuerier, service string) {
	q.Set("cpu:"+service+":5m", 72.5)
	q.Set("mem:"+service+":5m", 41.0)
	q.Set("rps:"+service+":5m", 830.0)
	q.Set("p95:"+service+":5m", 220.0)
	q.Set("err:"+service+":5m", 0.4)
}

func TestSampleAllSignals(t *testing.T) {
	q := NewStaticQuerier()
	seedAll(q, "backend")

	c := NewPromCollector(q, testMetricsConfig())
	snap, err := c.Sample(context.Background(), "backend")
	require.NoError(t, err)

	assert.Equal(t, "backend", snap.Service)
	assert.Equal(t, 72.5, snap.CPUPct)
	assert.Equal(t, 41.0, snap.MemPct)
	assert.Equal(t, 830.0, snap.RequestRate)
	assert.Equal(t, 220.0, snap.P95LatencyMs)
	assert.Equal(t, 0.4, snap.ErrorRatePct)
	assert.Empty(t, snap.Degraded)
	assert.WithinDuration(t, time.Now(), snap.SampledAt, time.Second)
}

func TestSampleDegradesFailedSignal(t *testing.T) {
	q := NewStaticQuerier()
	seedAll(q, "backend")
	q.SetError("mem:backend:5m", errors.New("scrape gap"))

	c := NewPromCollector(q, testMetricsConfig())
	snap, err := c.Sample(context.Background(), "backend")
	require.NoError(t, err)

	// The failed signal is neutral; the rest keep their values.
	assert.Equal(t, 0.0, snap.MemPct)
	assert.True(t, snap.IsDegraded(models.SignalMemory))
	assert.False(t, snap.IsDegraded(models.SignalCPU))
	assert.Equal(t, 72.5, snap.CPUPct)
	assert.Len(t, snap.Degraded, 1)
}

func TestSampleNoDataDegrades(t *testing.T) {
	q := NewStaticQuerier()
	// Nothing seeded: every query reports no data.

	c := NewPromCollector(q, testMetricsConfig())
	snap, err := c.Sample(context.Background(), "backend")
	require.NoError(t, err)

	assert.Len(t, snap.Degraded, len(models.AllSignals()))
	for _, sig := range models.AllSignals() {
		assert.Zero(t, snap.Value(sig))
	}
}

func TestSampleCancelledContext(t *testing.T) {
	q := NewStaticQuerier()
	seedAll(q, "backend")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewPromCollector(q, testMetricsConfig())
	_, err := c.Sample(ctx, "backend")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"plain", 42.5, 42.5},
		{"zero", 0, 0},
		{"nan", math.NaN(), 0},
		{"positive inf", math.Inf(1), 0},
		{"negative inf", math.Inf(-1), 0},
		{"negative", -3.2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestResilientQuerierOpensCircuit(t *testing.T) {
	q := NewStaticQuerier()
	q.SetError("cpu:backend:5m", errors.New("connection refused"))

	rq := NewResilientQuerier(q, resilience.NewBreaker(resilience.Options{
		Name:         "metrics",
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	}))

	ctx := context.Background()
	_, err := rq.Query(ctx, "cpu:backend:5m")
	require.Error(t, err)
	_, err = rq.Query(ctx, "cpu:backend:5m")
	require.Error(t, err)

	assert.Equal(t, resilience.StateOpen, rq.BreakerState())

	// Open circuit rejects immediately, even for seeded expressions.
	q.Set("cpu:backend:5m", 50)
	_, err = rq.Query(ctx, "cpu:backend:5m")
	assert.ErrorIs(t, err, resilience.ErrOpen)
}

func TestSampleWithOpenCircuitDegradesEverything(t *testing.T) {
	q := NewStaticQuerier()
	breaker := resilience.NewBreaker(resilience.Options{Name: "metrics", MaxFailures: 1, ResetTimeout: time.Minute})
	rq := NewResilientQuerier(q, breaker)

	// Trip the breaker.
	q.SetError("cpu:backend:5m", errors.New("down"))
	_, _ = rq.Query(context.Background(), "cpu:backend:5m")
	require.Equal(t, resilience.StateOpen, breaker.State())

	c := NewPromCollector(rq, testMetricsConfig())
	snap, err := c.Sample(context.Background(), "backend")
	require.NoError(t, err)
	assert.Len(t, snap.Degraded, len(models.AllSignals()))
}
