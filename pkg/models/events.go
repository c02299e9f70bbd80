package models

import "time"

type EventType string

const (
	EventTypeMetricSampled          EventType = "metric_sampled"
	EventTypeObservabilityDegraded  EventType = "observability_degraded"
	EventTypeDecisionMade           EventType = "decision_made"
	EventTypeDecisionVetoed         EventType = "decision_vetoed"
	EventTypeScalingStarted         EventType = "scaling_started"
	EventTypeScalingComplete        EventType = "scaling_complete"
	EventTypeScalingFailed          EventType = "scaling_failed"
	EventTypeReconcileFailed        EventType = "reconcile_failed"
	EventTypeOverrideSet            EventType = "override_set"
	EventTypeOverrideCleared        EventType = "override_cleared"
	EventTypeEmergencyEntered       EventType = "emergency_entered"
	EventTypeEmergencyExited        EventType = "emergency_exited"
	EventTypeTickComplete           EventType = "tick_complete"
	EventTypeTickSkipped            EventType = "tick_skipped"
	EventTypeError                  EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	Service   string        `json:"service,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, service, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Service:   service,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
