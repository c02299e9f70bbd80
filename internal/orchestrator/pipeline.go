package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/collector"
	"github.com/OldStager01/service-autoscaler/internal/events"
	"github.com/OldStager01/service-autoscaler/internal/governor"
	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/internal/policy"
	"github.com/OldStager01/service-autoscaler/internal/proxy"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/internal/scaler"
	"github.com/OldStager01/service-autoscaler/internal/telemetry"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

type PipelineConfig struct {
	Spec               *models.ServiceSpec
	Collector          collector.Collector
	Runtime            runtime.Runtime
	Policy             *policy.Engine
	Governor           *governor.Governor
	Engine             *scaler.Engine
	Reconciler         *proxy.Reconciler
	Telemetry          *telemetry.Telemetry
	DegradedAlertTicks int
}

// Pipeline runs the collect -> decide -> validate -> apply -> reconcile
// sequence for one service. Pipelines share every dependency but hold
// their own overlap guard and degraded-signal streaks, so one slow or
// broken service never touches the others.
type Pipeline struct {
	cfg  PipelineConfig
	spec *models.ServiceSpec

	mu             sync.Mutex
	degradedStreak map[models.Signal]int
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.DegradedAlertTicks <= 0 {
		cfg.DegradedAlertTicks = 3
	}
	return &Pipeline{
		cfg:            cfg,
		spec:           cfg.Spec,
		degradedStreak: make(map[models.Signal]int),
	}
}

// RunOnce executes one tick for this service. If the previous tick is
// still running the new one is skipped, never queued.
func (p *Pipeline) RunOnce(ctx context.Context, mode governor.Mode, drift bool, pub *events.Publisher) {
	if !p.mu.TryLock() {
		logger.WithService(p.spec.Name).Warn("Previous tick still running, skipping")
		pub.TickSkipped(p.spec.Name, "previous tick still running")
		return
	}
	defer p.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	var changed bool
	if mode == governor.ModeEmergency {
		changed = p.runEmergency(ctx, pub)
	} else {
		changed = p.runNormal(ctx, pub)
	}

	if changed || drift {
		p.reconcile(ctx, pub)
	}
}

// runNormal is the full per-service sequence. It reports whether the
// replica set changed and routing needs a rewrite.
func (p *Pipeline) runNormal(ctx context.Context, pub *events.Publisher) bool {
	service := p.spec.Name

	snap, err := p.cfg.Collector.Sample(ctx, service)
	if err != nil {
		logger.WithService(service).WithError(err).Error("Metric sampling failed")
		pub.Error(service, "Metric sampling failed", err)
		return false
	}
	pub.MetricSampled(service, snap)
	p.trackDegraded(snap, pub)

	observed, err := p.cfg.Runtime.GetReplicaCount(ctx, service)
	if err != nil {
		logger.WithService(service).WithError(err).Error("Reading replica count failed")
		pub.Error(service, "Reading replica count failed", err)
		return false
	}

	decision := p.cfg.Policy.Decide(snap)
	pub.DecisionMade(service, decision)
	p.cfg.Telemetry.RecordDecision(service, decision.Action)

	approved, vetoed, reason := p.cfg.Governor.Validate(ctx, p.spec, decision, observed)
	if vetoed {
		logger.WithService(service).WithField("reason", reason).Info("Decision vetoed")
		pub.DecisionVetoed(service, decision, reason)
		p.cfg.Telemetry.RecordVeto(service, reason)
		p.cfg.Telemetry.SetReplicas(service, observed, observed)
		return false
	}
	p.cfg.Telemetry.SetReplicas(service, observed, approved)

	if approved == observed {
		return false
	}
	return p.apply(ctx, approved, observed, reason, pub)
}

// runEmergency forces the service toward the emergency floor. Policy,
// overrides and cooldown are all preempted; an emergency only sheds.
func (p *Pipeline) runEmergency(ctx context.Context, pub *events.Publisher) bool {
	service := p.spec.Name

	observed, err := p.cfg.Runtime.GetReplicaCount(ctx, service)
	if err != nil {
		logger.WithService(service).WithError(err).Error("Reading replica count failed")
		pub.Error(service, "Reading replica count failed", err)
		return false
	}

	target := p.cfg.Governor.EmergencyTarget(p.spec, observed)
	p.cfg.Telemetry.SetReplicas(service, observed, target)
	if target == observed {
		return false
	}

	logger.WithService(service).
		WithField("from", observed).
		WithField("to", target).
		Warn("Emergency: shedding service toward floor")
	return p.apply(ctx, target, observed, "cluster emergency: shedding to floor replicas", pub)
}

func (p *Pipeline) apply(ctx context.Context, desired, observed int, reason string, pub *events.Publisher) bool {
	service := p.spec.Name
	action := models.ActionScaleUp
	if desired < observed {
		action = models.ActionScaleDown
	}

	pub.ScalingStarted(service, action, observed, desired)

	result, err := p.cfg.Engine.Apply(ctx, p.spec, desired, reason)
	if err != nil {
		logger.WithService(service).WithError(err).Error("Scaling action failed")
		pub.ScalingFailed(service, action, err)
		p.cfg.Telemetry.RecordScaling(service, action, false)
		// The runtime may have partially moved; reconcile regardless.
		return true
	}
	if !result.Changed {
		return false
	}

	p.cfg.Telemetry.RecordScaling(service, result.Action, true)
	p.cfg.Telemetry.SetReplicas(service, result.Current, result.Current)

	pub.ScalingComplete(&models.ScalingLogEntry{
		Timestamp:    time.Now().UTC(),
		Service:      service,
		Action:       result.Action,
		FromReplicas: result.Previous,
		ToReplicas:   result.Current,
		Reason:       result.Reason,
	})
	if result.StoreErr != nil {
		pub.Error(service, "Scaling verified but audit record failed", result.StoreErr)
	}
	return true
}

// trackDegraded raises one alert per streak, exactly when the streak
// reaches the configured length.
func (p *Pipeline) trackDegraded(snap *models.MetricSnapshot, pub *events.Publisher) {
	degraded := make(map[models.Signal]bool, len(snap.Degraded))
	for _, sig := range snap.Degraded {
		degraded[sig] = true
	}

	for _, sig := range models.AllSignals() {
		if !degraded[sig] {
			delete(p.degradedStreak, sig)
			continue
		}
		p.degradedStreak[sig]++
		if p.degradedStreak[sig] == p.cfg.DegradedAlertTicks {
			logger.WithService(p.spec.Name).
				WithField("signal", string(sig)).
				WithField("ticks", p.degradedStreak[sig]).
				Warn("Signal degraded for consecutive ticks")
			pub.ObservabilityDegraded(p.spec.Name, sig, p.degradedStreak[sig])
		}
	}
}

func (p *Pipeline) reconcile(ctx context.Context, pub *events.Publisher) {
	healthy, err := p.cfg.Reconciler.Reconcile(ctx, p.spec)
	if err != nil {
		logger.WithService(p.spec.Name).WithError(err).Warn("Reconcile failed")
		pub.ReconcileFailed(p.spec.Name, err)
		return
	}
	p.cfg.Telemetry.SetHealthyUpstreams(p.spec.Name, healthy)
}
