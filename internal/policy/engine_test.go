package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

func testPolicyConfig() config.PolicyConfig {
	return config.PolicyConfig{
		Thresholds: config.ThresholdsConfig{
			CPU:         config.SignalThreshold{ScaleUp: 70, ScaleDown: 30},
			Memory:      config.SignalThreshold{ScaleUp: 75, ScaleDown: 35},
			RequestRate: config.SignalThreshold{ScaleUp: 1000, ScaleDown: 200},
			P95Latency:  config.SignalThreshold{ScaleUp: 500, ScaleDown: 100},
			ErrorRate:   config.SignalThreshold{ScaleUp: 5, ScaleDown: 1},
		},
	}
}

func snap(cpu, mem, rps, p95, errRate float64) *models.MetricSnapshot {
	return &models.MetricSnapshot{
		Service:      "backend",
		CPUPct:       cpu,
		MemPct:       mem,
		RequestRate:  rps,
		P95LatencyMs: p95,
		ErrorRatePct: errRate,
		SampledAt:    time.Now(),
	}
}

func TestDecideScaleUpOnAnyLoadSignal(t *testing.T) {
	tests := []struct {
		name      string
		snapshot  *models.MetricSnapshot
		triggered models.Signal
	}{
		{"cpu alone", snap(85, 50, 500, 200, 0.5), models.SignalCPU},
		{"memory alone", snap(50, 80, 500, 200, 0.5), models.SignalMemory},
		{"request rate alone", snap(50, 50, 1200, 200, 0.5), models.SignalRequestRate},
		{"cpu at exact threshold", snap(70, 50, 500, 200, 0.5), models.SignalCPU},
	}

	engine := NewEngine(testPolicyConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Decide(tt.snapshot)
			assert.Equal(t, models.ActionScaleUp, d.Action)
			assert.Contains(t, d.TriggeredBy, tt.triggered)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestDecideScaleDownRequiresAllThreeLoadSignals(t *testing.T) {
	engine := NewEngine(testPolicyConfig())

	tests := []struct {
		name     string
		snapshot *models.MetricSnapshot
		want     models.ScalingAction
	}{
		{"all three below", snap(20, 10, 100, 50, 0.1), models.ActionScaleDown},
		{"cpu below only", snap(20, 50, 500, 50, 0.1), models.ActionNoScale},
		{"cpu and memory below", snap(20, 10, 500, 50, 0.1), models.ActionNoScale},
		{"memory and rate below", snap(50, 10, 100, 50, 0.1), models.ActionNoScale},
		{"all mid-band", snap(50, 50, 500, 200, 0.5), models.ActionNoScale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Decide(tt.snapshot)
			assert.Equal(t, tt.want, d.Action)
		})
	}
}

func TestAsymmetry(t *testing.T) {
	engine := NewEngine(testPolicyConfig())

	// One signal up wins even when the other two argue down.
	d := engine.Decide(snap(85, 10, 100, 50, 0.1))
	assert.Equal(t, models.ActionScaleUp, d.Action)
	assert.Equal(t, []models.Signal{models.SignalCPU}, d.TriggeredBy)
}

func TestSymptomSignalsNeverDriveScaling(t *testing.T) {
	engine := NewEngine(testPolicyConfig())

	// Latency and error rate blazing, load signals mid-band: no change.
	d := engine.Decide(snap(50, 50, 500, 900, 8))
	assert.Equal(t, models.ActionNoScale, d.Action)
	assert.Len(t, d.Symptoms, 2)

	// Load signals all below: scale down proceeds, symptoms still noted.
	d = engine.Decide(snap(20, 10, 100, 900, 8))
	assert.Equal(t, models.ActionScaleDown, d.Action)
	assert.Len(t, d.Symptoms, 2)

	// Symptom signals never appear in TriggeredBy.
	for _, sig := range d.TriggeredBy {
		assert.NotEqual(t, models.SignalP95Latency, sig)
		assert.NotEqual(t, models.SignalErrorRate, sig)
	}
}

func TestDegradedSignalNeverVotes(t *testing.T) {
	engine := NewEngine(testPolicyConfig())

	// CPU degraded to 0 must not count toward the all-three rule.
	s := snap(0, 10, 100, 50, 0.1)
	s.Degraded = []models.Signal{models.SignalCPU}
	d := engine.Decide(s)
	assert.Equal(t, models.ActionNoScale, d.Action)

	// Fully degraded snapshot holds steady.
	s = snap(0, 0, 0, 0, 0)
	s.Degraded = models.AllSignals()
	d = engine.Decide(s)
	assert.Equal(t, models.ActionNoScale, d.Action)

	// A live zero (service idle) still votes down.
	d = engine.Decide(snap(0, 0, 0, 0, 0))
	assert.Equal(t, models.ActionScaleDown, d.Action)
}

func TestPeakHoursAdjustment(t *testing.T) {
	cfg := testPolicyConfig()
	cfg.PeakHours = config.PeakHoursConfig{
		Enabled:    true,
		StartHour:  9,
		EndHour:    17,
		Multiplier: 1.5,
	}
	engine := NewEngine(cfg)

	peakTime := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	offPeakTime := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

	// CPU 50 is mid-band off-peak but above the effective 46.7 peak
	// threshold: capacity arrives earlier during the window.
	s := snap(50, 50, 500, 200, 0.5)

	engine.nowFn = func() time.Time { return offPeakTime }
	d := engine.Decide(s)
	assert.Equal(t, models.ActionNoScale, d.Action)
	assert.False(t, d.PeakHours)

	engine.nowFn = func() time.Time { return peakTime }
	d = engine.Decide(s)
	assert.Equal(t, models.ActionScaleUp, d.Action)
	assert.True(t, d.PeakHours)

	// CPU 25 votes down off-peak (<= 30) but not during peak (> 20):
	// capacity leaves later during the window.
	s = snap(25, 10, 100, 50, 0.1)

	engine.nowFn = func() time.Time { return offPeakTime }
	d = engine.Decide(s)
	assert.Equal(t, models.ActionScaleDown, d.Action)

	engine.nowFn = func() time.Time { return peakTime }
	d = engine.Decide(s)
	assert.Equal(t, models.ActionNoScale, d.Action)
}

func TestPeakWindowWrapsMidnight(t *testing.T) {
	cfg := testPolicyConfig()
	cfg.PeakHours = config.PeakHoursConfig{
		Enabled:    true,
		StartHour:  22,
		EndHour:    2,
		Multiplier: 1.5,
	}
	engine := NewEngine(cfg)
	s := snap(50, 50, 500, 200, 0.5)

	engine.nowFn = func() time.Time { return time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC) }
	assert.True(t, engine.Decide(s).PeakHours)

	engine.nowFn = func() time.Time { return time.Date(2025, 6, 3, 1, 0, 0, 0, time.UTC) }
	assert.True(t, engine.Decide(s).PeakHours)

	engine.nowFn = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	assert.False(t, engine.Decide(s).PeakHours)
}

func TestDecisionCarriesServiceAndTimestamp(t *testing.T) {
	engine := NewEngine(testPolicyConfig())
	fixed := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	engine.nowFn = func() time.Time { return fixed }

	d := engine.Decide(snap(85, 50, 500, 200, 0.5))
	require.NotNil(t, d)
	assert.Equal(t, "backend", d.Service)
	assert.Equal(t, fixed, d.Timestamp)
	assert.True(t, d.ShouldScale())

	d = engine.Decide(snap(50, 50, 500, 200, 0.5))
	assert.False(t, d.ShouldScale())
	assert.Equal(t, "within normal operating range", d.Reason)
}
