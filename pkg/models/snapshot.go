package models

import "time"

// Signal identifies one of the observed metric signals.
type Signal string

const (
	SignalCPU         Signal = "cpu_pct"
	SignalMemory      Signal = "mem_pct"
	SignalRequestRate Signal = "request_rate"
	SignalP95Latency  Signal = "p95_latency_ms"
	SignalErrorRate   Signal = "error_rate_pct"
)

// AllSignals lists every signal a snapshot carries, in sampling order.
func AllSignals() []Signal {
	return []Signal{SignalCPU, SignalMemory, SignalRequestRate, SignalP95Latency, SignalErrorRate}
}

// LoadSignals lists the signals allowed to drive scaling decisions.
// Latency and error rate are symptoms; they annotate but never decide.
func LoadSignals() []Signal {
	return []Signal{SignalCPU, SignalMemory, SignalRequestRate}
}

// MetricSnapshot is one service's observed signals at a point in time.
// A signal whose query failed holds the neutral value 0 and is listed
// in Degraded.
type MetricSnapshot struct {
	Service      string    `json:"service"`
	CPUPct       float64   `json:"cpu_pct"`
	MemPct       float64   `json:"mem_pct"`
	RequestRate  float64   `json:"request_rate"`
	P95LatencyMs float64   `json:"p95_latency_ms"`
	ErrorRatePct float64   `json:"error_rate_pct"`
	Degraded     []Signal  `json:"degraded,omitempty"`
	SampledAt    time.Time `json:"sampled_at"`
}

func (m *MetricSnapshot) Value(sig Signal) float64 {
	switch sig {
	case SignalCPU:
		return m.CPUPct
	case SignalMemory:
		return m.MemPct
	case SignalRequestRate:
		return m.RequestRate
	case SignalP95Latency:
		return m.P95LatencyMs
	case SignalErrorRate:
		return m.ErrorRatePct
	}
	return 0
}

func (m *MetricSnapshot) SetValue(sig Signal, v float64) {
	switch sig {
	case SignalCPU:
		m.CPUPct = v
	case SignalMemory:
		m.MemPct = v
	case SignalRequestRate:
		m.RequestRate = v
	case SignalP95Latency:
		m.P95LatencyMs = v
	case SignalErrorRate:
		m.ErrorRatePct = v
	}
}

// MarkDegraded records that sig could not be sampled and holds the
// neutral value.
func (m *MetricSnapshot) MarkDegraded(sig Signal) {
	m.SetValue(sig, 0)
	m.Degraded = append(m.Degraded, sig)
}

func (m *MetricSnapshot) IsDegraded(sig Signal) bool {
	for _, d := range m.Degraded {
		if d == sig {
			return true
		}
	}
	return false
}
