package models

import "time"

// ScalingLogEntry is one append-only audit record of a verified scaling
// action. Entries are never updated or deleted.
type ScalingLogEntry struct {
	ID           int64         `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Service      string        `json:"service"`
	Action       ScalingAction `json:"action"`
	FromReplicas int           `json:"from_replicas"`
	ToReplicas   int           `json:"to_replicas"`
	Reason       string        `json:"reason"`
}
