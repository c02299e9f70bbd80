package events

import (
	"fmt"
	"time"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// Publisher wraps the bus with one constructor per event in the
// vocabulary, so call sites never assemble events by hand.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

// WithTraceID returns a publisher that stamps every event with the
// given trace ID. Used per tick so one tick's events correlate.
func (p *Publisher) WithTraceID(traceID string) *Publisher {
	return &Publisher{bus: p.bus, traceID: traceID}
}

func (p *Publisher) publish(event *models.Event) {
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) MetricSampled(service string, snap *models.MetricSnapshot) {
	event := models.NewEvent(models.EventTypeMetricSampled, service, "Metrics sampled").
		WithData(snap)
	if len(snap.Degraded) > 0 {
		event.WithSeverity(models.SeverityWarning)
	}
	p.publish(event)
}

func (p *Publisher) ObservabilityDegraded(service string, signal models.Signal, ticks int) {
	msg := fmt.Sprintf("Signal %s degraded for %d consecutive ticks", signal, ticks)
	event := models.NewEvent(models.EventTypeObservabilityDegraded, service, msg).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"signal": string(signal),
			"ticks":  ticks,
		})
	p.publish(event)
}

func (p *Publisher) DecisionMade(service string, decision *models.ScalingDecision) {
	msg := "Scaling decision: " + string(decision.Action)
	event := models.NewEvent(models.EventTypeDecisionMade, service, msg).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) DecisionVetoed(service string, decision *models.ScalingDecision, reason string) {
	msg := fmt.Sprintf("Decision %s vetoed: %s", decision.Action, reason)
	event := models.NewEvent(models.EventTypeDecisionVetoed, service, msg).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"decision": decision,
			"reason":   reason,
		})
	p.publish(event)
}

func (p *Publisher) ScalingStarted(service string, action models.ScalingAction, from, to int) {
	msg := fmt.Sprintf("Scaling started: %s %d -> %d", action, from, to)
	event := models.NewEvent(models.EventTypeScalingStarted, service, msg).
		WithData(map[string]interface{}{
			"action": string(action),
			"from":   from,
			"to":     to,
		})
	p.publish(event)
}

func (p *Publisher) ScalingComplete(entry *models.ScalingLogEntry) {
	msg := fmt.Sprintf("Scaling complete: %s %d -> %d", entry.Action, entry.FromReplicas, entry.ToReplicas)
	event := models.NewEvent(models.EventTypeScalingComplete, entry.Service, msg).
		WithData(entry)
	p.publish(event)
}

func (p *Publisher) ScalingFailed(service string, action models.ScalingAction, err error) {
	msg := fmt.Sprintf("Scaling failed: %s: %v", action, err)
	event := models.NewEvent(models.EventTypeScalingFailed, service, msg).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"action": string(action),
			"error":  err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) ReconcileFailed(service string, err error) {
	event := models.NewEvent(models.EventTypeReconcileFailed, service, "Routing reconcile failed: "+err.Error()).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) OverrideSet(o *models.ManualOverride) {
	msg := fmt.Sprintf("Manual override set: %d replicas (by %s)", o.Replicas, o.SetBy)
	event := models.NewEvent(models.EventTypeOverrideSet, o.Service, msg).
		WithSeverity(models.SeverityWarning).
		WithData(o)
	p.publish(event)
}

func (p *Publisher) OverrideCleared(service, clearedBy string) {
	msg := "Manual override cleared by " + clearedBy
	event := models.NewEvent(models.EventTypeOverrideCleared, service, msg).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"cleared_by": clearedBy,
		})
	p.publish(event)
}

// EmergencyEntered and EmergencyExited are cluster-scoped; they carry
// no service.
func (p *Publisher) EmergencyEntered(reason string) {
	event := models.NewEvent(models.EventTypeEmergencyEntered, "", "Cluster emergency: "+reason).
		WithSeverity(models.SeverityCritical)
	p.publish(event)
}

func (p *Publisher) EmergencyExited(reason string) {
	event := models.NewEvent(models.EventTypeEmergencyExited, "", "Cluster emergency over: "+reason).
		WithSeverity(models.SeverityWarning)
	p.publish(event)
}

func (p *Publisher) TickComplete(services int, duration time.Duration) {
	msg := fmt.Sprintf("Tick complete: %d services in %s", services, duration.Round(time.Millisecond))
	event := models.NewEvent(models.EventTypeTickComplete, "", msg).
		WithData(map[string]interface{}{
			"services":    services,
			"duration_ms": duration.Milliseconds(),
		})
	p.publish(event)
}

func (p *Publisher) TickSkipped(service, reason string) {
	event := models.NewEvent(models.EventTypeTickSkipped, service, "Tick skipped: "+reason).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"reason": reason,
		})
	p.publish(event)
}

func (p *Publisher) Error(service, message string, err error) {
	event := models.NewEvent(models.EventTypeError, service, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
