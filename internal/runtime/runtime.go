package runtime

import (
	"context"
	"errors"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

var (
	// ErrUnknownService is returned for services the runtime was not
	// configured to manage.
	ErrUnknownService = errors.New("service is not managed")

	// ErrInstanceNotFound is returned when an instance id exists but does
	// not belong to the named service.
	ErrInstanceNotFound = errors.New("instance not found")
)

// Runtime is the workload backend the scaling engine drives. Replica
// counts are always observed from the backend, never assumed from prior
// writes: SetReplicaCount may return before the backend has converged,
// so callers poll GetReplicaCount to confirm.
type Runtime interface {
	// GetReplicaCount reports the number of running replicas.
	GetReplicaCount(ctx context.Context, service string) (int, error)

	// SetReplicaCount creates or removes replicas until exactly n exist.
	SetReplicaCount(ctx context.Context, service string, n int) error

	// ListInstances returns the running replicas, oldest first.
	ListInstances(ctx context.Context, service string) ([]models.Instance, error)

	// TerminateInstance stops and removes a single replica. Terminating
	// an instance that is already gone is not an error.
	TerminateInstance(ctx context.Context, service, id string) error

	Close() error
}
