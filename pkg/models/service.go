package models

import (
	"fmt"
	"time"
)

// ServiceSpec is the static configuration for one managed service.
// Specs are loaded at startup and never mutated at runtime.
type ServiceSpec struct {
	Name               string        `json:"name" mapstructure:"name"`
	MinReplicas        int           `json:"min_replicas" mapstructure:"min_replicas"`
	MaxReplicas        int           `json:"max_replicas" mapstructure:"max_replicas"`
	HealthCheckPath    string        `json:"health_check_path" mapstructure:"health_check_path"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout" mapstructure:"health_check_timeout"`

	// Runtime template, consumed by the container runtime when it
	// creates new replicas.
	Image         string            `json:"image" mapstructure:"image"`
	ContainerPort int               `json:"container_port" mapstructure:"container_port"`
	Env           map[string]string `json:"env,omitempty" mapstructure:"env"`
}

// WithinBounds reports whether n satisfies min <= n <= max.
func (s *ServiceSpec) WithinBounds(n int) bool {
	return n >= s.MinReplicas && n <= s.MaxReplicas
}

// ClampToBounds returns the nearest replica count inside [min, max].
func (s *ServiceSpec) ClampToBounds(n int) int {
	if n < s.MinReplicas {
		return s.MinReplicas
	}
	if n > s.MaxReplicas {
		return s.MaxReplicas
	}
	return n
}

func (s *ServiceSpec) String() string {
	return fmt.Sprintf("%s[%d..%d]", s.Name, s.MinReplicas, s.MaxReplicas)
}

type InstanceState string

const (
	InstanceStarting InstanceState = "starting"
	InstanceRunning  InstanceState = "running"
	InstanceStopping InstanceState = "stopping"
)

// Instance is a single running replica of a service as reported by the
// workload runtime.
type Instance struct {
	ID        string        `json:"id"`
	Service   string        `json:"service"`
	Address   string        `json:"address"`
	State     InstanceState `json:"state"`
	StartedAt time.Time     `json:"started_at"`
}
