package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/service-autoscaler")
	}

	// Environment variable settings
	v.SetEnvPrefix("AUTOSCALER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "service-autoscaler")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "15s")

	// Loop defaults
	v.SetDefault("loop.tick_interval", "30s")
	v.SetDefault("loop.tick_timeout", "25s")
	v.SetDefault("loop.max_parallel", 4)
	v.SetDefault("loop.drift_repair_every", 10)

	// Metrics defaults
	v.SetDefault("metrics.prometheus_url", "http://localhost:9090")
	v.SetDefault("metrics.query_timeout", "5s")
	v.SetDefault("metrics.window", "5m")
	v.SetDefault("metrics.degraded_alert_ticks", 3)
	v.SetDefault("metrics.circuit_breaker.max_failures", 5)
	v.SetDefault("metrics.circuit_breaker.timeout", "30s")
	v.SetDefault("metrics.queries.cpu",
		`100 * avg(rate(container_cpu_usage_seconds_total{service="$service"}[$window]))`)
	v.SetDefault("metrics.queries.memory",
		`100 * avg(container_memory_usage_bytes{service="$service"} / container_spec_memory_limit_bytes{service="$service"})`)
	v.SetDefault("metrics.queries.request_rate",
		`sum(rate(http_requests_total{service="$service"}[$window]))`)
	v.SetDefault("metrics.queries.p95_latency",
		`1000 * histogram_quantile(0.95, sum(rate(http_request_duration_seconds_bucket{service="$service"}[$window])) by (le))`)
	v.SetDefault("metrics.queries.error_rate",
		`100 * sum(rate(http_requests_total{service="$service",status=~"5.."}[$window])) / sum(rate(http_requests_total{service="$service"}[$window]))`)
	v.SetDefault("metrics.queries.cluster_cpu",
		`100 * (1 - avg(rate(node_cpu_seconds_total{mode="idle"}[$window])))`)
	v.SetDefault("metrics.queries.cluster_memory",
		`100 * (1 - sum(node_memory_MemAvailable_bytes) / sum(node_memory_MemTotal_bytes))`)

	// Policy defaults
	v.SetDefault("policy.thresholds.cpu.scale_up", 70.0)
	v.SetDefault("policy.thresholds.cpu.scale_down", 30.0)
	v.SetDefault("policy.thresholds.memory.scale_up", 75.0)
	v.SetDefault("policy.thresholds.memory.scale_down", 35.0)
	v.SetDefault("policy.thresholds.request_rate.scale_up", 1000.0)
	v.SetDefault("policy.thresholds.request_rate.scale_down", 200.0)
	v.SetDefault("policy.thresholds.p95_latency.scale_up", 500.0)
	v.SetDefault("policy.thresholds.p95_latency.scale_down", 100.0)
	v.SetDefault("policy.thresholds.error_rate.scale_up", 5.0)
	v.SetDefault("policy.thresholds.error_rate.scale_down", 1.0)
	v.SetDefault("policy.peak_hours.enabled", false)
	v.SetDefault("policy.peak_hours.start_hour", 9)
	v.SetDefault("policy.peak_hours.end_hour", 17)
	v.SetDefault("policy.peak_hours.multiplier", 1.5)

	// Governor defaults
	v.SetDefault("governor.cooldown", "5m")
	v.SetDefault("governor.emergency.cpu_pct", 90.0)
	v.SetDefault("governor.emergency.memory_pct", 95.0)
	v.SetDefault("governor.emergency.floor_replicas", 1)

	// Scaling defaults
	v.SetDefault("scaling.converge_timeout", "60s")
	v.SetDefault("scaling.poll_interval", "2s")

	// Proxy defaults
	v.SetDefault("proxy.driver", "nginx")
	v.SetDefault("proxy.nginx.conf_dir", "/etc/nginx/conf.d")
	v.SetDefault("proxy.nginx.reload_command", "nginx -s reload")
	v.SetDefault("proxy.nginx.reload_timeout", "10s")
	v.SetDefault("proxy.health_parallelism", 8)
	v.SetDefault("proxy.drain_delay", "10s")

	// Runtime defaults
	v.SetDefault("runtime.driver", "docker")
	v.SetDefault("runtime.docker.network", "autoscaler")
	v.SetDefault("runtime.docker.label_prefix", "autoscaler")
	v.SetDefault("runtime.docker.base_port", 18000)
	v.SetDefault("runtime.docker.stop_timeout", "10s")

	// Store defaults
	v.SetDefault("store.backend", "postgres")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "autoscaler")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.ping_timeout", "5s")
	v.SetDefault("database.migration_timeout", "60s")

	// Alerting defaults
	v.SetDefault("alerting.notifier", "log")
	v.SetDefault("alerting.timeout", "5s")
	v.SetDefault("alerting.queue_size", 64)

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.jwt_issuer", "service-autoscaler")
	v.SetDefault("api.admin_username", "admin")
	v.SetDefault("api.default_limit", 50)
	v.SetDefault("api.max_limit", 500)

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")

	// Events defaults
	v.SetDefault("events.buffer_size", 256)
}
