// Package orchestrator drives the control loop. A single ticker fans
// every configured service out through its pipeline, bounded by
// loop.max_parallel, and abandons whatever remains when the tick
// deadline passes.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
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
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// Deps bundles the components the orchestrator coordinates. All of
// them are built in main and shared across every service pipeline.
type Deps struct {
	Collector  collector.Collector
	Querier    collector.Querier
	Runtime    runtime.Runtime
	Engine     *scaler.Engine
	Reconciler *proxy.Reconciler
	Governor   *governor.Governor
	Telemetry  *telemetry.Telemetry
}

type Orchestrator struct {
	cfg         *config.Config
	deps        Deps
	bus         *events.EventBus
	publisher   *events.Publisher
	eventLogger *events.EventLogger
	monitor     *governor.Monitor
	pipelines   map[string]*Pipeline
	order       []string

	tickIndex atomic.Int64
	lastTick  atomic.Int64
}

func New(cfg *config.Config, d Deps) *Orchestrator {
	bus := events.NewEventBus(cfg.Events.BufferSize)

	o := &Orchestrator{
		cfg:       cfg,
		deps:      d,
		bus:       bus,
		publisher: events.NewPublisher(bus),
		pipelines: make(map[string]*Pipeline, len(cfg.Services)),
	}
	o.eventLogger = events.NewEventLogger(bus.SubscribeAll())
	o.monitor = governor.NewMonitor(d.Querier, cfg.Metrics, cfg.Governor.Emergency, o.onModeChange)

	pol := policy.NewEngine(cfg.Policy)
	for i := range cfg.Services {
		spec := &cfg.Services[i]
		o.pipelines[spec.Name] = NewPipeline(PipelineConfig{
			Spec:               spec,
			Collector:          d.Collector,
			Runtime:            d.Runtime,
			Policy:             pol,
			Governor:           d.Governor,
			Engine:             d.Engine,
			Reconciler:         d.Reconciler,
			Telemetry:          d.Telemetry,
			DegradedAlertTicks: cfg.Metrics.DegradedAlertTicks,
		})
		o.order = append(o.order, spec.Name)
	}
	return o
}

// EventBus exposes the bus so the API layer can stream events and the
// alert dispatcher can subscribe.
func (o *Orchestrator) EventBus() *events.EventBus {
	return o.bus
}

// Publisher exposes the event publisher for components that emit
// events outside the tick, such as the override API.
func (o *Orchestrator) Publisher() *events.Publisher {
	return o.publisher
}

// Mode reports the current cluster mode.
func (o *Orchestrator) Mode() governor.Mode {
	return o.monitor.Mode()
}

// LastSuccessfulTick returns when a tick last ran to completion, or
// the zero time if none has.
func (o *Orchestrator) LastSuccessfulTick() time.Time {
	ns := o.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Start brings up the event logger. The control loop itself runs via
// Run so the caller owns its lifetime.
func (o *Orchestrator) Start() {
	o.eventLogger.Start()
	logger.WithComponent("orchestrator").
		WithField("services", len(o.pipelines)).
		Info("Orchestrator started")
}

// Stop drains the event logger and closes the bus.
func (o *Orchestrator) Stop() {
	o.eventLogger.Stop()
	o.bus.Close()
	logger.WithComponent("orchestrator").Info("Orchestrator stopped")
}

// Run executes the loop until ctx is cancelled. The first tick fires
// immediately rather than one interval in.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.cfg.Loop.TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithComponent("orchestrator").
		WithField("interval", interval.String()).
		Info("Control loop running")

	o.RunTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.RunTick(ctx)
		}
	}
}

// RunTick executes one full tick: evaluate cluster mode once, then fan
// the services out with bounded parallelism. Services that have not
// started when the deadline passes are skipped; running ones see their
// context cancelled.
func (o *Orchestrator) RunTick(ctx context.Context) {
	tick := o.tickIndex.Add(1)
	tickCtx, cancel := context.WithTimeout(ctx, o.cfg.Loop.TickTimeout)
	defer cancel()

	start := time.Now()
	pub := o.publisher.WithTraceID(models.NewUUID())

	mode, err := o.monitor.Evaluate(tickCtx)
	if err != nil {
		logger.WithComponent("orchestrator").WithError(err).
			Warn("Cluster mode evaluation degraded")
	}
	o.deps.Telemetry.SetEmergencyMode(mode == governor.ModeEmergency)

	drift := o.cfg.Loop.DriftRepairEvery > 0 && tick%int64(o.cfg.Loop.DriftRepairEvery) == 0

	parallel := o.cfg.Loop.MaxParallel
	if parallel <= 0 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)

	var wg sync.WaitGroup
	for _, name := range o.order {
		p := o.pipelines[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-tickCtx.Done():
				logger.WithService(p.spec.Name).Warn("Tick deadline reached before service ran")
				pub.TickSkipped(p.spec.Name, "tick deadline reached")
				return
			}
			p.RunOnce(tickCtx, mode, drift, pub)
		}()
	}
	wg.Wait()

	duration := time.Since(start)
	if tickCtx.Err() != nil {
		o.deps.Telemetry.ObserveTick(telemetry.TickAbandoned, duration)
		logger.WithComponent("orchestrator").
			WithField("duration", duration.String()).
			Warn("Tick abandoned at deadline")
		return
	}

	o.deps.Telemetry.ObserveTick(telemetry.TickCompleted, duration)
	o.lastTick.Store(time.Now().UnixNano())
	pub.TickComplete(len(o.pipelines), duration)
}

// onModeChange turns monitor transitions into events and telemetry.
func (o *Orchestrator) onModeChange(from, to governor.Mode, reason string) {
	o.deps.Telemetry.SetEmergencyMode(to == governor.ModeEmergency)
	if to == governor.ModeEmergency {
		o.publisher.EmergencyEntered(reason)
		return
	}
	o.publisher.EmergencyExited(reason)
}
