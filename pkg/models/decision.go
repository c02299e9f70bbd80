package models

import "time"

type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionNoScale   ScalingAction = "no_scale"
)

// ScalingDecision is the policy engine's verdict for one service on one
// tick. It carries direction only; the governor turns it into a concrete
// replica count.
type ScalingDecision struct {
	Service     string        `json:"service"`
	Action      ScalingAction `json:"action"`
	TriggeredBy []Signal      `json:"triggered_by,omitempty"`
	Reason      string        `json:"reason"`
	Symptoms    []string      `json:"symptoms,omitempty"`
	PeakHours   bool          `json:"peak_hours"`
	Timestamp   time.Time     `json:"timestamp"`
}

func (d *ScalingDecision) ShouldScale() bool {
	return d.Action != ActionNoScale
}
