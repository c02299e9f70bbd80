package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// Reconciler keeps the routing layer pointed at exactly the healthy
// replicas of each service. It runs after every scaling action that
// changed something and periodically on its own to repair drift.
type Reconciler struct {
	runtime    runtime.Runtime
	router     Router
	prober     Prober
	parallel   int
	drainDelay time.Duration
}

func NewReconciler(rt runtime.Runtime, router Router, prober Prober, cfg config.ProxyConfig) *Reconciler {
	return &Reconciler{
		runtime:    rt,
		router:     router,
		prober:     prober,
		parallel:   cfg.HealthParallelism,
		drainDelay: cfg.DrainDelay,
	}
}

// Reconcile rewrites the service's upstream set to its currently healthy
// instances and reports how many are routed. An unhealthy instance is
// never left routed, even when that empties the set.
func (r *Reconciler) Reconcile(ctx context.Context, spec *models.ServiceSpec) (int, error) {
	return r.reconcile(ctx, spec, nil)
}

// DrainAndTerminate removes the victims from routing first, waits out
// the drain delay so in-flight requests can finish, then terminates
// them. If the routing rewrite fails the victims are left running and
// routed; the caller retries next tick.
func (r *Reconciler) DrainAndTerminate(ctx context.Context, spec *models.ServiceSpec, victims []models.Instance) error {
	if len(victims) == 0 {
		return nil
	}

	exclude := make(map[string]bool, len(victims))
	for _, v := range victims {
		exclude[v.ID] = true
	}

	if _, err := r.reconcile(ctx, spec, exclude); err != nil {
		return fmt.Errorf("remove victims from routing: %w", err)
	}

	if r.drainDelay > 0 {
		logger.WithService(spec.Name).
			WithField("victims", len(victims)).
			WithField("drain_delay", r.drainDelay.String()).
			Info("Draining replicas before termination")
		select {
		case <-time.After(r.drainDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var errs []error
	for _, v := range victims {
		if err := r.runtime.TerminateInstance(ctx, spec.Name, v.ID); err != nil {
			errs = append(errs, fmt.Errorf("terminate %s: %w", v.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) reconcile(ctx context.Context, spec *models.ServiceSpec, exclude map[string]bool) (int, error) {
	instances, err := r.runtime.ListInstances(ctx, spec.Name)
	if err != nil {
		return 0, fmt.Errorf("list instances: %w", err)
	}

	candidates := make([]models.Instance, 0, len(instances))
	for _, inst := range instances {
		if !exclude[inst.ID] {
			candidates = append(candidates, inst)
		}
	}

	healthy := healthyInstances(ctx, r.prober, spec, candidates, r.parallel)

	addrs := make([]string, 0, len(healthy))
	for _, inst := range healthy {
		addrs = append(addrs, inst.Address)
	}

	changed, err := r.router.SetUpstreams(spec.Name, addrs)
	if err != nil {
		return 0, fmt.Errorf("set upstreams: %w", err)
	}
	if changed {
		if err := r.router.Reload(ctx); err != nil {
			return 0, fmt.Errorf("reload routing layer: %w", err)
		}
	}

	logger.WithService(spec.Name).
		WithField("healthy", len(healthy)).
		WithField("candidates", len(candidates)).
		WithField("changed", changed).
		Debug("Reconciled upstreams")
	return len(healthy), nil
}
