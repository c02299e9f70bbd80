package config

import (
	"time"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Governor  GovernorConfig  `mapstructure:"governor"`
	Scaling   ScalingConfig   `mapstructure:"scaling"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	API       APIConfig       `mapstructure:"api"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Events    EventsConfig    `mapstructure:"events"`

	Services []models.ServiceSpec `mapstructure:"services"`
}

// ServiceSpec returns the declared service for name, or nil when the
// service is not managed.
func (c *Config) ServiceSpec(name string) *models.ServiceSpec {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i]
		}
	}
	return nil
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Environment     string        `mapstructure:"environment"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoopConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	TickTimeout      time.Duration `mapstructure:"tick_timeout"`
	MaxParallel      int           `mapstructure:"max_parallel"`
	DriftRepairEvery int           `mapstructure:"drift_repair_every"`
}

type MetricsConfig struct {
	PrometheusURL      string               `mapstructure:"prometheus_url"`
	QueryTimeout       time.Duration        `mapstructure:"query_timeout"`
	Window             string               `mapstructure:"window"`
	Queries            QueryTemplates       `mapstructure:"queries"`
	DegradedAlertTicks int                  `mapstructure:"degraded_alert_ticks"`
	CircuitBreaker     CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// QueryTemplates hold the PromQL sources for each signal. $service and
// $window are substituted per sample.
type QueryTemplates struct {
	CPU           string `mapstructure:"cpu"`
	Memory        string `mapstructure:"memory"`
	RequestRate   string `mapstructure:"request_rate"`
	P95Latency    string `mapstructure:"p95_latency"`
	ErrorRate     string `mapstructure:"error_rate"`
	ClusterCPU    string `mapstructure:"cluster_cpu"`
	ClusterMemory string `mapstructure:"cluster_memory"`
}

// For returns the template for a per-service signal.
func (q QueryTemplates) For(sig models.Signal) string {
	switch sig {
	case models.SignalCPU:
		return q.CPU
	case models.SignalMemory:
		return q.Memory
	case models.SignalRequestRate:
		return q.RequestRate
	case models.SignalP95Latency:
		return q.P95Latency
	case models.SignalErrorRate:
		return q.ErrorRate
	}
	return ""
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type PolicyConfig struct {
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	PeakHours  PeakHoursConfig  `mapstructure:"peak_hours"`
}

// SignalThreshold is one signal's pair of cut lines. ScaleUp must be
// strictly greater than ScaleDown; Validate enforces this at startup.
type SignalThreshold struct {
	ScaleUp   float64 `mapstructure:"scale_up"`
	ScaleDown float64 `mapstructure:"scale_down"`
}

type ThresholdsConfig struct {
	CPU         SignalThreshold `mapstructure:"cpu"`
	Memory      SignalThreshold `mapstructure:"memory"`
	RequestRate SignalThreshold `mapstructure:"request_rate"`
	P95Latency  SignalThreshold `mapstructure:"p95_latency"`
	ErrorRate   SignalThreshold `mapstructure:"error_rate"`
}

func (t ThresholdsConfig) For(sig models.Signal) SignalThreshold {
	switch sig {
	case models.SignalCPU:
		return t.CPU
	case models.SignalMemory:
		return t.Memory
	case models.SignalRequestRate:
		return t.RequestRate
	case models.SignalP95Latency:
		return t.P95Latency
	case models.SignalErrorRate:
		return t.ErrorRate
	}
	return SignalThreshold{}
}

// PeakHoursConfig describes the daily window during which thresholds are
// tightened. The window may wrap midnight (start 22, end 2).
type PeakHoursConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	StartHour  int     `mapstructure:"start_hour"`
	EndHour    int     `mapstructure:"end_hour"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// Contains reports whether t falls inside the peak window.
func (p PeakHoursConfig) Contains(t time.Time) bool {
	if !p.Enabled {
		return false
	}
	h := t.Hour()
	if p.StartHour < p.EndHour {
		return h >= p.StartHour && h < p.EndHour
	}
	return h >= p.StartHour || h < p.EndHour
}

type GovernorConfig struct {
	Cooldown  time.Duration   `mapstructure:"cooldown"`
	Emergency EmergencyConfig `mapstructure:"emergency"`
}

type EmergencyConfig struct {
	CPUPct        float64 `mapstructure:"cpu_pct"`
	MemoryPct     float64 `mapstructure:"memory_pct"`
	FloorReplicas int     `mapstructure:"floor_replicas"`
}

type ScalingConfig struct {
	ConvergeTimeout time.Duration `mapstructure:"converge_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

type ProxyConfig struct {
	Driver            string        `mapstructure:"driver"`
	Nginx             NginxConfig   `mapstructure:"nginx"`
	HealthParallelism int           `mapstructure:"health_parallelism"`
	DrainDelay        time.Duration `mapstructure:"drain_delay"`
}

type NginxConfig struct {
	ConfDir       string        `mapstructure:"conf_dir"`
	ReloadCommand string        `mapstructure:"reload_command"`
	ReloadTimeout time.Duration `mapstructure:"reload_timeout"`
}

type RuntimeConfig struct {
	Driver string       `mapstructure:"driver"`
	Docker DockerConfig `mapstructure:"docker"`
}

type DockerConfig struct {
	Network     string        `mapstructure:"network"`
	LabelPrefix string        `mapstructure:"label_prefix"`
	BasePort    int           `mapstructure:"base_port"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	MaxConnections   int           `mapstructure:"max_connections"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
}

type AlertingConfig struct {
	Notifier   string        `mapstructure:"notifier"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	QueueSize  int           `mapstructure:"queue_size"`
}

type APIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	RateLimit         int           `mapstructure:"rate_limit"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	JWTDuration       time.Duration `mapstructure:"jwt_duration"`
	JWTIssuer         string        `mapstructure:"jwt_issuer"`
	AdminUsername     string        `mapstructure:"admin_username"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	DefaultLimit      int           `mapstructure:"default_limit"`
	MaxLimit          int           `mapstructure:"max_limit"`
	CORS              CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type WebSocketConfig struct {
	MaxConnections  int           `mapstructure:"max_connections"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
