// Package telemetry exposes the loop's own health as Prometheus
// metrics, served on /metrics by the admin API.
package telemetry

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// TickOutcome labels one orchestrator tick on the tick counter.
type TickOutcome string

const (
	TickCompleted TickOutcome = "completed"
	TickAbandoned TickOutcome = "abandoned"
)

// Telemetry owns its registry, so tests and demo runs can build as many
// instances as they like without duplicate-registration panics.
type Telemetry struct {
	registry *prometheus.Registry

	ticksTotal       *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	decisionsTotal   *prometheus.CounterVec
	vetoesTotal      *prometheus.CounterVec
	scalingTotal     *prometheus.CounterVec
	emergencyMode    prometheus.Gauge
	observedReplicas *prometheus.GaugeVec
	desiredReplicas  *prometheus.GaugeVec
	healthyUpstreams *prometheus.GaugeVec
}

func New() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_ticks_total",
			Help: "Control loop ticks by outcome",
		}, []string{"outcome"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoscaler_tick_duration_seconds",
			Help:    "Wall time of one full tick across all services",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_decisions_total",
			Help: "Policy decisions by service and action",
		}, []string{"service", "action"}),
		vetoesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_vetoes_total",
			Help: "Vetoed decisions by service and veto class",
		}, []string{"service", "reason"}),
		scalingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_scaling_actions_total",
			Help: "Applied and failed scaling actions",
		}, []string{"service", "action", "outcome"}),
		emergencyMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoscaler_emergency_mode",
			Help: "1 while the cluster is in emergency mode",
		}),
		observedReplicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_observed_replicas",
			Help: "Replica count reported by the runtime",
		}, []string{"service"}),
		desiredReplicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_desired_replicas",
			Help: "Replica count the loop is converging toward",
		}, []string{"service"}),
		healthyUpstreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_healthy_upstreams",
			Help: "Instances that passed the last health check",
		}, []string{"service"}),
	}

	t.registry.MustRegister(
		t.ticksTotal, t.tickDuration, t.decisionsTotal, t.vetoesTotal,
		t.scalingTotal, t.emergencyMode, t.observedReplicas,
		t.desiredReplicas, t.healthyUpstreams,
	)
	return t
}

// Handler serves the registry in the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) ObserveTick(outcome TickOutcome, duration time.Duration) {
	t.ticksTotal.WithLabelValues(string(outcome)).Inc()
	t.tickDuration.Observe(duration.Seconds())
}

func (t *Telemetry) RecordDecision(service string, action models.ScalingAction) {
	t.decisionsTotal.WithLabelValues(service, string(action)).Inc()
}

// RecordVeto reduces the free-text veto reason to a coarse class so the
// label stays low-cardinality (reasons embed durations and counts).
func (t *Telemetry) RecordVeto(service, reason string) {
	t.vetoesTotal.WithLabelValues(service, vetoClass(reason)).Inc()
}

func (t *Telemetry) RecordScaling(service string, action models.ScalingAction, success bool) {
	outcome := "applied"
	if !success {
		outcome = "failed"
	}
	t.scalingTotal.WithLabelValues(service, string(action), outcome).Inc()
}

func (t *Telemetry) SetEmergencyMode(on bool) {
	if on {
		t.emergencyMode.Set(1)
		return
	}
	t.emergencyMode.Set(0)
}

func (t *Telemetry) SetReplicas(service string, observed, desired int) {
	t.observedReplicas.WithLabelValues(service).Set(float64(observed))
	t.desiredReplicas.WithLabelValues(service).Set(float64(desired))
}

func (t *Telemetry) SetHealthyUpstreams(service string, n int) {
	t.healthyUpstreams.WithLabelValues(service).Set(float64(n))
}

func vetoClass(reason string) string {
	switch {
	case strings.Contains(reason, "cooldown"):
		return "cooldown"
	case strings.Contains(reason, "min_replicas"), strings.Contains(reason, "max_replicas"):
		return "bounds"
	case strings.Contains(reason, "override lookup"):
		return "override_lookup"
	case strings.Contains(reason, "state lookup"):
		return "state_lookup"
	default:
		return "other"
	}
}
