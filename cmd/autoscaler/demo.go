package main

import (
	"context"
	"fmt"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/collector"
	"github.com/OldStager01/service-autoscaler/internal/events"
	"github.com/OldStager01/service-autoscaler/internal/governor"
	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/internal/notifier"
	"github.com/OldStager01/service-autoscaler/internal/orchestrator"
	"github.com/OldStager01/service-autoscaler/internal/proxy"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/internal/scaler"
	"github.com/OldStager01/service-autoscaler/internal/simulator"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/internal/telemetry"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

const demoSimPort = 9091

// runDemo drives the whole control loop against a built-in load
// simulator: fake runtime, in-memory store and router, real collector
// and policy path. Four scripted phases show scale-up, cooldown vetoes,
// a cluster emergency and recovery.
func runDemo(cfg *config.Config) error {
	cfg.Store.Backend = "memory"
	cfg.Runtime.Driver = "fake"
	cfg.Proxy.Driver = "memory"
	cfg.Governor.Cooldown = 12 * time.Second
	cfg.Metrics.PrometheusURL = fmt.Sprintf("http://127.0.0.1:%d", demoSimPort)

	if len(cfg.Services) == 0 {
		cfg.Services = []models.ServiceSpec{
			{Name: "api", MinReplicas: 2, MaxReplicas: 10, HealthCheckPath: "/healthz"},
			{Name: "worker", MinReplicas: 1, MaxReplicas: 5, HealthCheckPath: "/healthz"},
		}
	}

	sim := simulator.New(simulator.Config{Port: demoSimPort})
	for _, spec := range cfg.Services {
		sim.GetOrCreateService(spec.Name).SetReplicas(spec.MinReplicas)
	}
	if err := sim.Start(); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}
	defer sim.Stop()

	querier, err := buildQuerier(cfg)
	if err != nil {
		return err
	}
	defer querier.Close()

	rt := runtime.NewFakeRuntime(cfg.Services)
	for _, spec := range cfg.Services {
		rt.Seed(spec.Name, spec.MinReplicas)
	}

	st := store.NewMemoryStore()
	defer st.Close()

	reconciler := proxy.NewReconciler(rt, proxy.NewMemoryRouter(), proxy.NewStaticProber(), cfg.Proxy)
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Collector:  collector.NewPromCollector(querier, cfg.Metrics),
		Querier:    querier,
		Runtime:    rt,
		Engine:     scaler.NewEngine(rt, reconciler, st, cfg.Scaling),
		Reconciler: reconciler,
		Governor:   governor.New(st, cfg.Governor),
		Telemetry:  telemetry.New(),
	})
	orch.Start()
	defer orch.Stop()

	dispatcher := events.NewAlertDispatcher(orch.EventBus(), notifier.NewLogNotifier(), cfg.Alerting)
	dispatcher.Start()
	defer dispatcher.Stop()

	eventChan := orch.EventBus().SubscribeAll()
	go func() {
		for event := range eventChan {
			logger.Infof("[EVENT] %s: %s (service: %s, severity: %s)",
				event.Type, event.Message, event.Service, event.Severity)
		}
	}()

	tick := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Loop.TickTimeout)
		defer cancel()
		orch.RunTick(ctx)
		syncReplicas(ctx, cfg, rt, sim)
	}

	logger.Info("=== Phase 1: Normal load ===")
	tick()
	time.Sleep(2 * time.Second)
	tick()

	logger.Info("=== Phase 2: Traffic surge on api ===")
	sim.GetOrCreateService("api").InjectSpike(92, 3*time.Minute, 0)
	tick()
	time.Sleep(2 * time.Second)
	tick() // still inside cooldown, expect a veto
	time.Sleep(cfg.Governor.Cooldown)
	tick()

	logger.Info("=== Phase 3: Cluster emergency ===")
	sim.SetEmergency(97, 97, 2*time.Minute)
	tick()

	logger.Info("=== Phase 4: Recovery ===")
	sim.ClearEmergency()
	sim.GetOrCreateService("api").ClearSpike()
	tick()
	time.Sleep(cfg.Governor.Cooldown)
	tick()

	printScalingLog(cfg, st)
	logger.Info("Demo complete")
	return nil
}

// syncReplicas feeds observed replica counts back into the simulator so
// scaling visibly relieves the simulated load.
func syncReplicas(ctx context.Context, cfg *config.Config, rt runtime.Runtime, sim *simulator.Simulator) {
	for _, spec := range cfg.Services {
		n, err := rt.GetReplicaCount(ctx, spec.Name)
		if err != nil {
			continue
		}
		sim.GetOrCreateService(spec.Name).SetReplicas(n)
	}
}

func printScalingLog(cfg *config.Config, st store.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, spec := range cfg.Services {
		entries, err := st.QueryLog(ctx, spec.Name, time.Time{}, time.Now(), 50)
		if err != nil || len(entries) == 0 {
			continue
		}
		logger.Infof("Scaling log for %s:", spec.Name)
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			logger.Infof("  %s %s %d -> %d (%s)",
				e.Timestamp.Format("15:04:05"), e.Action, e.FromReplicas, e.ToReplicas, e.Reason)
		}
	}
}
