package models

import "time"

// ScalingState is the loop's durable record for one service. CurrentReplicas
// is what the runtime reported after the last verified scaling action, never
// an assumption. LastScaledAt is zero until the first successful action and
// drives the cooldown window.
type ScalingState struct {
	Service         string    `json:"service"`
	CurrentReplicas int       `json:"current_replicas"`
	LastScaledAt    time.Time `json:"last_scaled_at"`
}

// CooldownRemaining returns how much of the window is left at now, or zero
// when the service is free to scale.
func (s *ScalingState) CooldownRemaining(cooldown time.Duration, now time.Time) time.Duration {
	if s.LastScaledAt.IsZero() {
		return 0
	}
	remaining := cooldown - now.Sub(s.LastScaledAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
