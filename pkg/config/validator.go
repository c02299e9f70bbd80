package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OldStager01/service-autoscaler/pkg/models"
	"github.com/OldStager01/service-autoscaler/pkg/validation"
)

// signalKeys maps each signal to its config key under metrics.queries
// and policy.thresholds.
var signalKeys = []struct {
	sig models.Signal
	key string
}{
	{models.SignalCPU, "cpu"},
	{models.SignalMemory, "memory"},
	{models.SignalRequestRate, "request_rate"},
	{models.SignalP95Latency, "p95_latency"},
	{models.SignalErrorRate, "error_rate"},
}

// Validate checks the whole tree and reports every problem at once.
// Callers treat any error as fatal; a loop running on bad thresholds or
// bounds is worse than one that refuses to start.
func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validEnvs := map[string]bool{"development": true, "production": true, "test": true}
	if !validEnvs[c.App.Environment] {
		errs = append(errs, fmt.Errorf("app.environment must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Loop validation
	if c.Loop.TickInterval <= 0 {
		errs = append(errs, errors.New("loop.tick_interval must be positive"))
	}
	if c.Loop.TickTimeout <= 0 {
		errs = append(errs, errors.New("loop.tick_timeout must be positive"))
	}
	if c.Loop.TickTimeout >= c.Loop.TickInterval {
		errs = append(errs, errors.New("loop.tick_timeout must be less than loop.tick_interval"))
	}
	if c.Loop.MaxParallel < 1 {
		errs = append(errs, errors.New("loop.max_parallel must be at least 1"))
	}
	if c.Loop.DriftRepairEvery < 0 {
		errs = append(errs, errors.New("loop.drift_repair_every must not be negative"))
	}

	// Metrics validation
	if c.Metrics.PrometheusURL == "" {
		errs = append(errs, errors.New("metrics.prometheus_url is required"))
	}
	if c.Metrics.QueryTimeout <= 0 {
		errs = append(errs, errors.New("metrics.query_timeout must be positive"))
	}
	if c.Metrics.Window == "" {
		errs = append(errs, errors.New("metrics.window is required"))
	}
	for _, sk := range signalKeys {
		if c.Metrics.Queries.For(sk.sig) == "" {
			errs = append(errs, fmt.Errorf("metrics.queries.%s is required", sk.key))
		}
	}

	// Policy validation: scale_up must sit strictly above scale_down for
	// every signal, otherwise the hysteresis band is inverted.
	for _, sk := range signalKeys {
		th := c.Policy.Thresholds.For(sk.sig)
		if th.ScaleUp <= th.ScaleDown {
			errs = append(errs, fmt.Errorf(
				"policy.thresholds.%s: scale_up (%.1f) must be strictly greater than scale_down (%.1f)",
				sk.key, th.ScaleUp, th.ScaleDown))
		}
		if th.ScaleDown < 0 {
			errs = append(errs, fmt.Errorf("policy.thresholds.%s: scale_down must not be negative", sk.key))
		}
	}

	if c.Policy.PeakHours.Enabled {
		if c.Policy.PeakHours.StartHour < 0 || c.Policy.PeakHours.StartHour > 23 {
			errs = append(errs, errors.New("policy.peak_hours.start_hour must be between 0 and 23"))
		}
		if c.Policy.PeakHours.EndHour < 0 || c.Policy.PeakHours.EndHour > 23 {
			errs = append(errs, errors.New("policy.peak_hours.end_hour must be between 0 and 23"))
		}
		if c.Policy.PeakHours.StartHour == c.Policy.PeakHours.EndHour {
			errs = append(errs, errors.New("policy.peak_hours window must not be empty"))
		}
		if c.Policy.PeakHours.Multiplier < 1 {
			errs = append(errs, errors.New("policy.peak_hours.multiplier must be at least 1"))
		}
	}

	// Governor validation
	if c.Governor.Cooldown <= 0 {
		errs = append(errs, errors.New("governor.cooldown must be positive"))
	}
	if c.Governor.Emergency.CPUPct <= 0 || c.Governor.Emergency.CPUPct > 100 {
		errs = append(errs, errors.New("governor.emergency.cpu_pct must be between 0 and 100"))
	}
	if c.Governor.Emergency.MemoryPct <= 0 || c.Governor.Emergency.MemoryPct > 100 {
		errs = append(errs, errors.New("governor.emergency.memory_pct must be between 0 and 100"))
	}
	if c.Governor.Emergency.FloorReplicas < 1 {
		errs = append(errs, errors.New("governor.emergency.floor_replicas must be at least 1"))
	}

	// Scaling validation
	if c.Scaling.PollInterval <= 0 {
		errs = append(errs, errors.New("scaling.poll_interval must be positive"))
	}
	if c.Scaling.ConvergeTimeout <= c.Scaling.PollInterval {
		errs = append(errs, errors.New("scaling.converge_timeout must be greater than scaling.poll_interval"))
	}

	// Proxy validation
	switch c.Proxy.Driver {
	case "nginx":
		if c.Proxy.Nginx.ConfDir == "" {
			errs = append(errs, errors.New("proxy.nginx.conf_dir is required"))
		}
		if c.Proxy.Nginx.ReloadCommand == "" {
			errs = append(errs, errors.New("proxy.nginx.reload_command is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("proxy.driver must be one of: nginx, memory"))
	}
	if c.Proxy.HealthParallelism < 1 {
		errs = append(errs, errors.New("proxy.health_parallelism must be at least 1"))
	}
	if c.Proxy.DrainDelay < 0 {
		errs = append(errs, errors.New("proxy.drain_delay must not be negative"))
	}

	// Runtime validation
	switch c.Runtime.Driver {
	case "docker":
		if c.Runtime.Docker.Network == "" {
			errs = append(errs, errors.New("runtime.docker.network is required"))
		}
		if c.Runtime.Docker.LabelPrefix == "" {
			errs = append(errs, errors.New("runtime.docker.label_prefix is required"))
		}
		if c.Runtime.Docker.BasePort < 1024 || c.Runtime.Docker.BasePort > 60000 {
			errs = append(errs, errors.New("runtime.docker.base_port must be between 1024 and 60000"))
		}
	case "fake":
	default:
		errs = append(errs, fmt.Errorf("runtime.driver must be one of: docker, fake"))
	}

	// Store validation
	switch c.Store.Backend {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
		if c.Database.MaxConnections <= 0 {
			errs = append(errs, errors.New("database.max_connections must be positive"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of: postgres, memory"))
	}

	// Alerting validation
	switch c.Alerting.Notifier {
	case "webhook":
		if c.Alerting.WebhookURL == "" {
			errs = append(errs, errors.New("alerting.webhook_url is required for the webhook notifier"))
		}
	case "log", "none":
	default:
		errs = append(errs, fmt.Errorf("alerting.notifier must be one of: webhook, log, none"))
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			errs = append(errs, errors.New("api.port must be between 1 and 65535"))
		}
		if c.App.Environment == "production" {
			if c.API.JWTSecret == "change-me-in-production" || c.API.JWTSecret == "" {
				errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
			}
			if c.API.AdminPasswordHash == "" {
				errs = append(errs, errors.New("api.admin_password_hash is required in production"))
			}
		}
	}

	// Service validation
	seen := make(map[string]bool)
	for i := range c.Services {
		errs = append(errs, c.validateService(&c.Services[i], seen)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}

func (c *Config) validateService(spec *models.ServiceSpec, seen map[string]bool) []error {
	var errs []error
	label := fmt.Sprintf("services[%s]", spec.Name)

	if err := validation.ValidateServiceName(spec.Name); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", label, err))
	}
	if seen[spec.Name] {
		errs = append(errs, fmt.Errorf("%s: duplicate service name", label))
	}
	seen[spec.Name] = true

	if err := validation.ValidateReplicaBounds(spec.MinReplicas, spec.MaxReplicas); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", label, err))
	}
	if spec.HealthCheckPath == "" || !strings.HasPrefix(spec.HealthCheckPath, "/") {
		errs = append(errs, fmt.Errorf("%s: health_check_path must start with /", label))
	}
	if spec.HealthCheckTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s: health_check_timeout must be positive", label))
	}

	if c.Runtime.Driver == "docker" {
		if spec.Image == "" {
			errs = append(errs, fmt.Errorf("%s: image is required with the docker runtime", label))
		}
		if spec.ContainerPort <= 0 || spec.ContainerPort > 65535 {
			errs = append(errs, fmt.Errorf("%s: container_port must be between 1 and 65535", label))
		}
	}

	return errs
}
