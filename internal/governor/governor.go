// Package governor stands between policy and execution. Every decision
// passes its checks in a fixed order (manual override, replica bounds,
// cooldown) and a failed check vetoes the action rather than adjusting
// it. The cluster emergency mode lives here too and preempts all of it.
package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// ErrOverrideOutOfBounds rejects override values outside [min, max] at
// set-time, before anything is stored.
var ErrOverrideOutOfBounds = errors.New("override outside replica bounds")

// Governor applies the safety checks to one decision at a time.
type Governor struct {
	store    store.Store
	cooldown time.Duration
	floor    int
	nowFn    func() time.Time
}

func New(st store.Store, cfg config.GovernorConfig) *Governor {
	return &Governor{
		store:    st,
		cooldown: cfg.Cooldown,
		floor:    cfg.Emergency.FloorReplicas,
		nowFn:    time.Now,
	}
}

// Validate derives the desired replica count from the decision (a single
// step from the observed count) and runs the safety checks. It returns
// the approved count, or vetoed=true with a reason and nothing applied.
//
// Check order matters: an override replaces the desired count outright
// but is still bounds-checked; bounds veto rather than clamp; cooldown
// binds last and only when something would actually change.
func (g *Governor) Validate(ctx context.Context, spec *models.ServiceSpec, decision *models.ScalingDecision, observed int) (int, bool, string) {
	desired := observed
	switch decision.Action {
	case models.ActionScaleUp:
		desired = observed + 1
	case models.ActionScaleDown:
		desired = observed - 1
	}

	// 1. Manual override replaces the policy's desired count.
	override, err := g.store.GetOverride(ctx, spec.Name)
	overrideActive := false
	switch {
	case err == nil:
		desired = override.Replicas
		overrideActive = true
	case errors.Is(err, store.ErrNotFound):
		// No pin; the policy decision stands.
	default:
		// Acting without knowing whether an operator pinned the count
		// is not safe. Hold this tick.
		return observed, true, fmt.Sprintf("override lookup failed: %v", err)
	}

	// 2. Bounds. A desired count outside [min, max] is vetoed, never
	// clamped. The exception is state repair: when the OBSERVED count
	// is itself out of bounds (external interference), the governor
	// proposes the nearest bound instead.
	repairReason := ""
	if !spec.WithinBounds(desired) {
		if !spec.WithinBounds(observed) {
			desired = spec.ClampToBounds(observed)
			repairReason = fmt.Sprintf(
				"observed count %d outside bounds [%d, %d]; repairing to %d",
				observed, spec.MinReplicas, spec.MaxReplicas, desired)
		} else if desired < spec.MinReplicas {
			return observed, true, fmt.Sprintf(
				"scale to %d refused: min_replicas is %d", desired, spec.MinReplicas)
		} else {
			return observed, true, fmt.Sprintf(
				"scale to %d refused: max_replicas is %d", desired, spec.MaxReplicas)
		}
	}

	// Nothing would change: approve without consulting the cooldown.
	if desired == observed {
		return desired, false, "no change required"
	}

	// 3. Cooldown.
	state, err := g.store.GetState(ctx, spec.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		state = &models.ScalingState{Service: spec.Name}
	case err != nil:
		return observed, true, fmt.Sprintf("state lookup failed: %v", err)
	}
	if remaining := state.CooldownRemaining(g.cooldown, g.nowFn()); remaining > 0 {
		return observed, true, fmt.Sprintf("cooldown active: %s remaining", remaining.Round(time.Second))
	}

	if repairReason != "" {
		return desired, false, repairReason
	}
	if overrideActive {
		return desired, false, fmt.Sprintf(
			"manual override pins %s at %d (set by %s)", spec.Name, desired, override.SetBy)
	}
	return desired, false, "policy decision approved"
}

// EmergencyTarget is the forced replica count for a service while the
// cluster is in emergency: the configured floor clamped into the
// service's own bounds, but never above the current count. An emergency
// only sheds capacity.
func (g *Governor) EmergencyTarget(spec *models.ServiceSpec, observed int) int {
	floor := spec.ClampToBounds(g.floor)
	if observed < floor {
		return observed
	}
	return floor
}

// SetOverride validates and stores a pin. Out-of-range values are
// rejected here, at set-time, with nothing stored.
func (g *Governor) SetOverride(ctx context.Context, spec *models.ServiceSpec, replicas int, setBy string) (*models.ManualOverride, error) {
	if !spec.WithinBounds(replicas) {
		return nil, fmt.Errorf("%w: %d not in [%d, %d] for %s",
			ErrOverrideOutOfBounds, replicas, spec.MinReplicas, spec.MaxReplicas, spec.Name)
	}

	o := models.ManualOverride{
		Service:  spec.Name,
		Replicas: replicas,
		SetBy:    setBy,
		SetAt:    g.nowFn().UTC(),
	}
	if err := g.store.SetOverride(ctx, o); err != nil {
		return nil, fmt.Errorf("store override: %w", err)
	}

	logger.WithService(spec.Name).
		WithField("replicas", replicas).
		WithField("set_by", setBy).
		Warn("Manual override set")
	return &o, nil
}

// ClearOverride removes the pin; policy resumes on the next tick.
func (g *Governor) ClearOverride(ctx context.Context, service string) error {
	if err := g.store.ClearOverride(ctx, service); err != nil {
		return err
	}
	logger.WithService(service).Warn("Manual override cleared")
	return nil
}
