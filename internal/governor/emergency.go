package governor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/OldStager01/service-autoscaler/internal/collector"
	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/config"
)

// Mode is the cluster-wide operating state.
type Mode string

const (
	ModeNormal    Mode = "normal"
	ModeEmergency Mode = "emergency"
)

// Monitor owns the normal/emergency state machine. It is evaluated once
// per tick, before any per-service work, and its verdict preempts every
// per-service decision for that tick.
type Monitor struct {
	querier  collector.Querier
	cpuQuery string
	memQuery string
	cpuLimit float64
	memLimit float64
	onChange func(from, to Mode, reason string)

	mu   sync.Mutex
	mode Mode
}

// NewMonitor builds the cluster queries from the configured templates.
// onChange fires on every transition; nil is allowed.
func NewMonitor(q collector.Querier, metrics config.MetricsConfig, em config.EmergencyConfig, onChange func(from, to Mode, reason string)) *Monitor {
	r := strings.NewReplacer("$window", metrics.Window)
	return &Monitor{
		querier:  q,
		cpuQuery: r.Replace(metrics.Queries.ClusterCPU),
		memQuery: r.Replace(metrics.Queries.ClusterMemory),
		cpuLimit: em.CPUPct,
		memLimit: em.MemoryPct,
		onChange: onChange,
		mode:     ModeNormal,
	}
}

// Mode returns the current mode without re-evaluating.
func (m *Monitor) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Evaluate refreshes the mode from cluster telemetry and returns it.
//
// The rules are asymmetric on purpose. Any successfully observed value
// over its limit enters emergency, even if the other query failed: a
// confirmed overload is acted on. Leaving emergency requires BOTH
// queries to succeed and read calm. When telemetry is too broken to
// decide, the mode stays where it is and an error is returned; unknown
// cluster state must never trigger a mass scale-down, and must not end
// an emergency early either.
func (m *Monitor) Evaluate(ctx context.Context) (Mode, error) {
	cpu, cpuErr := m.querier.Query(ctx, m.cpuQuery)
	mem, memErr := m.querier.Query(ctx, m.memQuery)

	if cpuErr == nil && cpu > m.cpuLimit {
		m.setMode(ModeEmergency, fmt.Sprintf("cluster cpu %.1f%% over limit %.1f%%", cpu, m.cpuLimit))
		return ModeEmergency, nil
	}
	if memErr == nil && mem > m.memLimit {
		m.setMode(ModeEmergency, fmt.Sprintf("cluster memory %.1f%% over limit %.1f%%", mem, m.memLimit))
		return ModeEmergency, nil
	}

	if cpuErr != nil || memErr != nil {
		err := errors.Join(cpuErr, memErr)
		logger.WithComponent("governor").WithError(err).
			Warn("Cluster telemetry unavailable; emergency mode unchanged")
		return m.Mode(), fmt.Errorf("cluster telemetry unavailable: %w", err)
	}

	m.setMode(ModeNormal, fmt.Sprintf("cluster cpu %.1f%%, memory %.1f%% within limits", cpu, mem))
	return ModeNormal, nil
}

func (m *Monitor) setMode(to Mode, reason string) {
	m.mu.Lock()
	from := m.mode
	if from == to {
		m.mu.Unlock()
		return
	}
	m.mode = to
	m.mu.Unlock()

	entry := logger.WithComponent("governor").
		WithField("from", string(from)).
		WithField("to", string(to)).
		WithField("reason", reason)
	if to == ModeEmergency {
		entry.Warn("Cluster entered emergency mode")
	} else {
		entry.Info("Cluster left emergency mode")
	}

	if m.onChange != nil {
		m.onChange(from, to, reason)
	}
}
