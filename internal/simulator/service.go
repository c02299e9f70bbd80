package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

type ServiceSimConfig struct {
	// Baseline per-replica load at BaselineReplicas running.
	BaseCPU      float64
	BaseMemory   float64
	BaseRate     float64
	BaseP95Ms    float64
	BaseErrorPct float64

	BaselineReplicas int
	Variance         float64
}

// ServiceSim models the load of one service. Total demand follows the
// pattern and any injected spike; per-replica CPU is that demand spread
// over however many replicas currently run, so scaling up visibly
// relieves pressure and the control loop actually converges.
type ServiceSim struct {
	name     string
	cfg      ServiceSimConfig
	pattern  Pattern
	replicas int
	spike    *spike
	burst    *errorBurst
	mu       sync.RWMutex
}

// spike pushes total CPU demand toward a target over a ramp, holds it
// for the duration, then falls away.
type spike struct {
	targetCPU float64
	start     time.Time
	duration  time.Duration
	rampUp    time.Duration
	baseCPU   float64
}

// errorBurst raises the error rate for a while, with no ramp. Failures
// rarely announce themselves gradually.
type errorBurst struct {
	targetPct float64
	start     time.Time
	duration  time.Duration
}

func NewServiceSim(name string, cfg ServiceSimConfig) *ServiceSim {
	if cfg.BaselineReplicas <= 0 {
		cfg.BaselineReplicas = 2
	}
	if cfg.BaseCPU <= 0 {
		cfg.BaseCPU = 45
	}
	if cfg.BaseMemory <= 0 {
		cfg.BaseMemory = 55
	}
	if cfg.BaseRate <= 0 {
		cfg.BaseRate = 400
	}
	if cfg.BaseP95Ms <= 0 {
		cfg.BaseP95Ms = 120
	}
	if cfg.Variance <= 0 {
		cfg.Variance = 5
	}

	return &ServiceSim{
		name:     name,
		cfg:      cfg,
		pattern:  PatternSteady,
		replicas: cfg.BaselineReplicas,
	}
}

// Value produces the current reading for one signal.
func (s *ServiceSim) Value(sig models.Signal, now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	factor := s.pattern.Factor(now)
	demandCPU := s.spikedCPU(s.cfg.BaseCPU*factor, now)
	perReplicaCPU := s.dilute(demandCPU)

	switch sig {
	case models.SignalCPU:
		return clampPct(jitter(perReplicaCPU, s.cfg.Variance))
	case models.SignalMemory:
		// Memory tracks 60% of the CPU swing around baseline.
		mem := s.cfg.BaseMemory + (perReplicaCPU-s.cfg.BaseCPU)*0.6
		return clampPct(jitter(mem, s.cfg.Variance/2))
	case models.SignalRequestRate:
		// Request rate is service-wide, not per replica.
		rate := s.cfg.BaseRate * factor * (demandCPU / s.cfg.BaseCPU)
		return math.Max(0, jitter(rate, s.cfg.Variance*4))
	case models.SignalP95Latency:
		return s.latency(perReplicaCPU)
	case models.SignalErrorRate:
		return clampPct(s.errorRate(now))
	default:
		return 0
	}
}

func (s *ServiceSim) spikedCPU(base float64, now time.Time) float64 {
	if s.spike == nil {
		return base
	}

	elapsed := now.Sub(s.spike.start)
	switch {
	case elapsed > s.spike.duration:
		s.spike = nil
		return base
	case elapsed < s.spike.rampUp:
		progress := float64(elapsed) / float64(s.spike.rampUp)
		return s.spike.baseCPU + (s.spike.targetCPU-s.spike.baseCPU)*progress
	default:
		return s.spike.targetCPU
	}
}

// dilute spreads total demand over the running replicas, anchored at
// the baseline replica count.
func (s *ServiceSim) dilute(demandCPU float64) float64 {
	if s.replicas <= 0 {
		return 100
	}
	return demandCPU * float64(s.cfg.BaselineReplicas) / float64(s.replicas)
}

// latency sits near base until per-replica CPU passes 70%, then climbs
// steeply toward saturation.
func (s *ServiceSim) latency(perReplicaCPU float64) float64 {
	p95 := s.cfg.BaseP95Ms
	if perReplicaCPU > 70 {
		p95 *= 1 + (perReplicaCPU-70)/10
	}
	return math.Max(1, jitter(p95, s.cfg.Variance*2))
}

func (s *ServiceSim) errorRate(now time.Time) float64 {
	pct := s.cfg.BaseErrorPct
	if s.burst != nil {
		if now.Sub(s.burst.start) > s.burst.duration {
			s.burst = nil
		} else {
			pct = s.burst.targetPct
		}
	}
	return jitter(pct, 0.2)
}

func (s *ServiceSim) SetBaseCPU(cpu float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.BaseCPU = cpu
}

func (s *ServiceSim) SetPattern(p Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = p
}

func (s *ServiceSim) Pattern() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pattern.Name()
}

// SetReplicas feeds the observed replica count back into dilution.
func (s *ServiceSim) SetReplicas(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicas = n
}

func (s *ServiceSim) Replicas() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replicas
}

func (s *ServiceSim) InjectSpike(targetCPU float64, duration, rampUp time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spike = &spike{
		targetCPU: targetCPU,
		start:     time.Now(),
		duration:  duration,
		rampUp:    rampUp,
		baseCPU:   s.cfg.BaseCPU,
	}
}

func (s *ServiceSim) InjectErrorBurst(targetPct float64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.burst = &errorBurst{
		targetPct: targetPct,
		start:     time.Now(),
		duration:  duration,
	}
}

func (s *ServiceSim) ClearSpike() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spike = nil
	s.burst = nil
}

func (s *ServiceSim) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spikeInfo := map[string]interface{}{"active": false}
	if s.spike != nil {
		remaining := s.spike.duration - time.Since(s.spike.start)
		if remaining < 0 {
			remaining = 0
		}
		spikeInfo = map[string]interface{}{
			"active":     true,
			"target_cpu": s.spike.targetCPU,
			"remaining":  remaining.String(),
		}
	}

	return map[string]interface{}{
		"name":              s.name,
		"replicas":          s.replicas,
		"baseline_replicas": s.cfg.BaselineReplicas,
		"base_cpu":          s.cfg.BaseCPU,
		"base_memory":       s.cfg.BaseMemory,
		"base_rate":         s.cfg.BaseRate,
		"pattern":           s.pattern.Name(),
		"spike":             spikeInfo,
	}
}

func jitter(base, variance float64) float64 {
	value := base + (rand.Float64()*2-1)*variance
	return math.Round(value*100) / 100
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
