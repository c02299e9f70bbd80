package models

import "time"

// ManualOverride pins a service to a fixed replica count until cleared.
// At most one override exists per service; it wins over every policy
// decision but is still bounds-checked by the governor.
type ManualOverride struct {
	Service  string    `json:"service"`
	Replicas int       `json:"replicas"`
	SetBy    string    `json:"set_by"`
	SetAt    time.Time `json:"set_at"`
}
