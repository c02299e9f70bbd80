package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OldStager01/service-autoscaler/api"
	"github.com/OldStager01/service-autoscaler/internal/auth"
	"github.com/OldStager01/service-autoscaler/internal/collector"
	"github.com/OldStager01/service-autoscaler/internal/events"
	"github.com/OldStager01/service-autoscaler/internal/governor"
	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/internal/notifier"
	"github.com/OldStager01/service-autoscaler/internal/orchestrator"
	"github.com/OldStager01/service-autoscaler/internal/proxy"
	"github.com/OldStager01/service-autoscaler/internal/resilience"
	"github.com/OldStager01/service-autoscaler/internal/runtime"
	"github.com/OldStager01/service-autoscaler/internal/scaler"
	"github.com/OldStager01/service-autoscaler/internal/store"
	"github.com/OldStager01/service-autoscaler/internal/telemetry"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/database"
	"github.com/OldStager01/service-autoscaler/pkg/validation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	once := flag.Bool("once", false, "run a single tick and exit")
	demo := flag.Bool("demo", false, "run a self-contained demo against a built-in load simulator")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash for an admin password and exit")
	flag.Parse()

	if *hashPassword != "" {
		if err := validation.ValidatePassword(*hashPassword); err != nil {
			return fmt.Errorf("refusing weak admin password: %w", err)
		}
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Environment)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Environment)

	if *demo {
		return runDemo(cfg)
	}

	if *migrate {
		return runMigrations(cfg)
	}

	st, db, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if db != nil {
		defer db.Close()
	}

	querier, err := buildQuerier(cfg)
	if err != nil {
		return err
	}
	defer querier.Close()

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	router, err := buildRouter(cfg)
	if err != nil {
		return err
	}

	reconciler := proxy.NewReconciler(rt, router, proxy.NewHTTPProber(), cfg.Proxy)
	engine := scaler.NewEngine(rt, reconciler, st, cfg.Scaling)
	gov := governor.New(st, cfg.Governor)
	telem := telemetry.New()

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Collector:  collector.NewPromCollector(querier, cfg.Metrics),
		Querier:    querier,
		Runtime:    rt,
		Engine:     engine,
		Reconciler: reconciler,
		Governor:   gov,
		Telemetry:  telem,
	})
	orch.Start()
	defer orch.Stop()

	notify, err := notifier.New(cfg.Alerting)
	if err != nil {
		return fmt.Errorf("failed to build notifier: %w", err)
	}
	dispatcher := events.NewAlertDispatcher(orch.EventBus(), notify, cfg.Alerting)
	dispatcher.Start()
	defer dispatcher.Stop()

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Loop.TickTimeout)
		defer cancel()
		orch.RunTick(ctx)
		return nil
	}

	return serve(cfg, orch, server(cfg, orch, st, gov, rt, querier, telem))
}

// server builds the HTTP surface, or returns nil when the API is
// disabled in config.
func server(cfg *config.Config, orch *orchestrator.Orchestrator, st store.Store, gov *governor.Governor, rt runtime.Runtime, querier collector.Querier, telem *telemetry.Telemetry) *api.Server {
	if !cfg.API.Enabled {
		logger.Info("API server disabled")
		return nil
	}

	return api.NewServer(cfg, api.Deps{
		Loop:      orch,
		Events:    orch.EventBus(),
		Publisher: orch.Publisher(),
		Store:     st,
		Governor:  gov,
		Runtime:   rt,
		Querier:   querier,
		Telemetry: telem,
	})
}

// serve runs the control loop and API server until a shutdown signal
// or a fatal server error.
func serve(cfg *config.Config, orch *orchestrator.Orchestrator, srv *api.Server) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := orch.Run(loopCtx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("Control loop exited")
		}
	}()

	errChan := make(chan error, 1)
	if srv != nil {
		go func() {
			logger.Infof("API server listening on port %d", cfg.API.Port)
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	stopLoop()
	<-loopDone

	shutdownTimeout := cfg.App.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("Stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config) error {
	if cfg.Store.Backend != "postgres" {
		return fmt.Errorf("migrations require store.backend=postgres, got %q", cfg.Store.Backend)
	}

	db, err := database.New(cfg.Database.ToDBConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	timeout := cfg.Database.MigrationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Running database migrations")
	if err := database.NewMigrator(db).Run(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Migrations completed successfully")
	return nil
}

func buildStore(cfg *config.Config) (store.Store, *database.DB, error) {
	switch cfg.Store.Backend {
	case "postgres":
		db, err := database.New(cfg.Database.ToDBConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("Database connection established")
		return store.NewPostgresStore(db), db, nil
	case "", "memory":
		logger.Warn("Using in-memory store: overrides and the scaling log will not survive restarts")
		return store.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildQuerier(cfg *config.Config) (collector.Querier, error) {
	prom, err := collector.NewPromQuerier(cfg.Metrics.PrometheusURL, cfg.Metrics.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics querier: %w", err)
	}

	breaker := resilience.NewBreaker(resilience.Options{
		Name:         "prometheus",
		MaxFailures:  cfg.Metrics.CircuitBreaker.MaxFailures,
		ResetTimeout: cfg.Metrics.CircuitBreaker.Timeout,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.WithComponent("breaker").Warnf("Circuit %s: %s -> %s", name, from, to)
		},
	})
	return collector.NewResilientQuerier(prom, breaker), nil
}

func buildRuntime(cfg *config.Config) (runtime.Runtime, error) {
	switch cfg.Runtime.Driver {
	case "", "docker":
		rt, err := runtime.NewDockerRuntime(cfg.Runtime.Docker, cfg.Services)
		if err != nil {
			return nil, fmt.Errorf("failed to create docker runtime: %w", err)
		}
		return rt, nil
	case "fake":
		logger.Warn("Using fake runtime: no real containers will be started")
		rt := runtime.NewFakeRuntime(cfg.Services)
		for _, spec := range cfg.Services {
			rt.Seed(spec.Name, spec.MinReplicas)
		}
		return rt, nil
	default:
		return nil, fmt.Errorf("unknown runtime driver %q", cfg.Runtime.Driver)
	}
}

func buildRouter(cfg *config.Config) (proxy.Router, error) {
	switch cfg.Proxy.Driver {
	case "", "nginx":
		return proxy.NewNginxRouter(cfg.Proxy.Nginx), nil
	case "memory":
		logger.Warn("Using in-memory router: no real proxy will be reconfigured")
		return proxy.NewMemoryRouter(), nil
	default:
		return nil, fmt.Errorf("unknown proxy driver %q", cfg.Proxy.Driver)
	}
}
