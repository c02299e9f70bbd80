package models

import "time"

// Alert is a fire-and-forget operator notification. Delivery is best
// effort and never blocks the control loop.
type Alert struct {
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Severity  EventSeverity `json:"severity"`
	Service   string        `json:"service,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
