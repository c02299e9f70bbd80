package scaler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

var (
	// ErrOutOfBounds means a desired count slipped past the governor.
	ErrOutOfBounds = errors.New("desired replica count outside configured bounds")

	// ErrConvergeTimeout means the runtime never reported the desired
	// count within the converge window.
	ErrConvergeTimeout = errors.New("replica count did not converge")
)

// Drainer removes replicas from routing and waits out the drain delay
// before terminating them.
type Drainer interface {
	DrainAndTerminate(ctx context.Context, spec *models.ServiceSpec, victims []models.Instance) error
}

// Result reports what one apply actually did.
type Result struct {
	Service  string
	Changed  bool
	Previous int
	Current  int
	Action   models.ScalingAction
	Reason   string

	// StoreErr carries a bookkeeping failure that followed a verified
	// runtime action. The action stands; callers surface the warning.
	StoreErr error
}

// Engine turns an approved replica count into reality and verifies it.
// The audit log and scaling state are written only after the runtime
// observably reached the desired count, so a failed or timed-out action
// leaves no trace and is retried on a later tick.
type Engine struct {
	runtime runtime.Runtime
	drainer Drainer
	store   store.Store

	convergeTimeout time.Duration
	pollInterval    time.Duration
	nowFn           func() time.Time
}

func NewEngine(rt runtime.Runtime, drainer Drainer, st store.Store, cfg config.ScalingConfig) *Engine {
	return &Engine{
		runtime:         rt,
		drainer:         drainer,
		store:           st,
		convergeTimeout: cfg.ConvergeTimeout,
		pollInterval:    cfg.PollInterval,
		nowFn:           time.Now,
	}
}

// Apply moves the service to desired replicas. The current count is read
// from the runtime at apply time, never from cached state. Applying the
// count the service already has is a verified no-op: nothing is touched,
// nothing is recorded.
func (e *Engine) Apply(ctx context.Context, spec *models.ServiceSpec, desired int, reason string) (*Result, error) {
	current, err := e.runtime.GetReplicaCount(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("read current replica count: %w", err)
	}

	if current == desired {
		return &Result{
			Service:  spec.Name,
			Changed:  false,
			Previous: current,
			Current:  current,
			Action:   models.ActionNoScale,
			Reason:   reason,
		}, nil
	}

	// Bounds are re-checked before the runtime is touched. A violating
	// count is an error, never silently clamped.
	if !spec.WithinBounds(desired) {
		return nil, fmt.Errorf("%w: %d not in [%d, %d] for %s",
			ErrOutOfBounds, desired, spec.MinReplicas, spec.MaxReplicas, spec.Name)
	}

	action := models.ActionScaleUp
	if desired < current {
		action = models.ActionScaleDown
	}

	logger.WithService(spec.Name).
		WithField("from", current).
		WithField("to", desired).
		WithField("reason", reason).
		Info("Applying scaling action")

	if desired > current {
		if err := e.runtime.SetReplicaCount(ctx, spec.Name, desired); err != nil {
			return nil, fmt.Errorf("set replica count: %w", err)
		}
	} else {
		victims, err := e.pickVictims(ctx, spec.Name, current-desired)
		if err != nil {
			return nil, err
		}
		if err := e.drainer.DrainAndTerminate(ctx, spec, victims); err != nil {
			return nil, fmt.Errorf("drain and terminate: %w", err)
		}
	}

	observed, err := e.waitConverged(ctx, spec.Name, desired)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Service:  spec.Name,
		Changed:  true,
		Previous: current,
		Current:  observed,
		Action:   action,
		Reason:   reason,
	}

	now := e.nowFn().UTC()
	entry := &models.ScalingLogEntry{
		Timestamp:    now,
		Service:      spec.Name,
		Action:       action,
		FromReplicas: current,
		ToReplicas:   observed,
		Reason:       reason,
	}
	state := models.ScalingState{
		Service:         spec.Name,
		CurrentReplicas: observed,
		LastScaledAt:    now,
	}
	if err := e.store.RecordScaling(ctx, entry, state); err != nil {
		logger.WithService(spec.Name).WithError(err).
			Error("Scaling action verified but recording it failed")
		res.StoreErr = err
	}

	logger.WithService(spec.Name).
		WithField("replicas", observed).
		WithField("action", string(action)).
		Info("Scaling action verified")
	return res, nil
}

// pickVictims selects the n newest instances for removal.
func (e *Engine) pickVictims(ctx context.Context, service string, n int) ([]models.Instance, error) {
	instances, err := e.runtime.ListInstances(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	if n > len(instances) {
		n = len(instances)
	}
	// ListInstances is oldest first, so the tail holds the newest.
	return instances[len(instances)-n:], nil
}

// waitConverged polls the runtime until it reports desired replicas.
// Transient read errors keep polling; only the deadline or the caller's
// context ends the wait.
func (e *Engine) waitConverged(ctx context.Context, service string, desired int) (int, error) {
	deadline := time.NewTimer(e.convergeTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		observed, err := e.runtime.GetReplicaCount(ctx, service)
		if err == nil && observed == desired {
			return observed, nil
		}
		if err != nil {
			logger.WithService(service).WithError(err).Debug("Converge poll failed")
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline.C:
			return 0, fmt.Errorf("%w: %s did not reach %d replicas within %s",
				ErrConvergeTimeout, service, desired, e.convergeTimeout)
		case <-ticker.C:
		}
	}
}
