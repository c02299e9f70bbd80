// Package policy turns a metric snapshot into a scaling decision. The
// engine is pure: no I/O, no stored state, same snapshot in, same
// decision out.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

type vote int

const (
	voteNone vote = iota
	voteUp
	voteDown
)

// Engine evaluates per-signal thresholds and combines the votes.
//
// The combination rule is deliberately asymmetric: ANY load signal above
// its scale-up threshold adds capacity, while removing capacity needs
// ALL THREE load signals below their scale-down thresholds. Latency and
// error rate never vote; they are symptoms and only annotate the
// decision.
type Engine struct {
	thresholds config.ThresholdsConfig
	peak       config.PeakHoursConfig

	nowFn func() time.Time
}

func NewEngine(cfg config.PolicyConfig) *Engine {
	return &Engine{
		thresholds: cfg.Thresholds,
		peak:       cfg.PeakHours,
		nowFn:      time.Now,
	}
}

func (e *Engine) Decide(snap *models.MetricSnapshot) *models.ScalingDecision {
	now := e.nowFn()
	peak := e.peak.Contains(now)

	decision := &models.ScalingDecision{
		Service:   snap.Service,
		Action:    models.ActionNoScale,
		PeakHours: peak,
		Timestamp: now,
	}

	votes := make(map[models.Signal]vote, len(models.AllSignals()))
	for _, sig := range models.AllSignals() {
		votes[sig] = e.evaluate(snap, sig, peak)
	}

	// Symptom signals annotate but never decide.
	for _, sig := range []models.Signal{models.SignalP95Latency, models.SignalErrorRate} {
		if votes[sig] == voteUp {
			th := e.effectiveThreshold(sig, peak)
			decision.Symptoms = append(decision.Symptoms,
				fmt.Sprintf("%s %.1f >= %.1f", sig, snap.Value(sig), th.ScaleUp))
		}
	}

	var upReasons []string
	downCount := 0
	for _, sig := range models.LoadSignals() {
		th := e.effectiveThreshold(sig, peak)
		switch votes[sig] {
		case voteUp:
			decision.TriggeredBy = append(decision.TriggeredBy, sig)
			upReasons = append(upReasons,
				fmt.Sprintf("%s %.1f >= %.1f", sig, snap.Value(sig), th.ScaleUp))
		case voteDown:
			downCount++
		}
	}

	switch {
	case len(upReasons) > 0:
		decision.Action = models.ActionScaleUp
		decision.Reason = strings.Join(upReasons, "; ") + suffix(" above scale-up threshold", peak)

	case downCount == len(models.LoadSignals()):
		decision.Action = models.ActionScaleDown
		decision.TriggeredBy = append(decision.TriggeredBy, models.LoadSignals()...)
		var parts []string
		for _, sig := range models.LoadSignals() {
			th := e.effectiveThreshold(sig, peak)
			parts = append(parts, fmt.Sprintf("%s %.1f <= %.1f", sig, snap.Value(sig), th.ScaleDown))
		}
		decision.Reason = strings.Join(parts, "; ") + suffix(" all load signals below scale-down threshold", peak)

	default:
		decision.Reason = "within normal operating range"
	}

	return decision
}

// evaluate casts one signal's vote. A degraded signal never votes: its
// neutral zero must not argue for dropping capacity.
func (e *Engine) evaluate(snap *models.MetricSnapshot, sig models.Signal, peak bool) vote {
	if snap.IsDegraded(sig) {
		return voteNone
	}

	th := e.effectiveThreshold(sig, peak)
	v := snap.Value(sig)

	switch {
	case v >= th.ScaleUp:
		return voteUp
	case v <= th.ScaleDown:
		return voteDown
	default:
		return voteNone
	}
}

// effectiveThreshold applies the peak-hours adjustment. Dividing both
// cut lines by the multiplier makes scale-up trip earlier and
// scale-down trip later during the window, and keeps up strictly above
// down.
func (e *Engine) effectiveThreshold(sig models.Signal, peak bool) config.SignalThreshold {
	th := e.thresholds.For(sig)
	if !peak || e.peak.Multiplier <= 1 {
		return th
	}
	return config.SignalThreshold{
		ScaleUp:   th.ScaleUp / e.peak.Multiplier,
		ScaleDown: th.ScaleDown / e.peak.Multiplier,
	}
}

func suffix(base string, peak bool) string {
	if peak {
		return base + " (peak hours)"
	}
	return base
}
