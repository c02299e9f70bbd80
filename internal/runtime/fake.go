package runtime

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

const fakeBasePort = 28000

// FakeRuntime is an in-memory Runtime for tests and demo mode. Failure
// fields are read on every call, so tests configure them before driving
// the code under test.
type FakeRuntime struct {
	// GetErr fails GetReplicaCount and ListInstances.
	GetErr error
	// SetErr fails SetReplicaCount.
	SetErr error
	// TerminateErr fails TerminateInstance.
	TerminateErr error
	// Frozen accepts mutations without applying them, so converge
	// polling never sees the desired count.
	Frozen bool

	// TerminateCalls records terminated instance ids in call order.
	TerminateCalls []string

	mu        sync.Mutex
	specs     map[string]models.ServiceSpec
	instances map[string][]models.Instance
	nextPort  int
	closed    bool
}

func NewFakeRuntime(specs []models.ServiceSpec) *FakeRuntime {
	byName := make(map[string]models.ServiceSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	return &FakeRuntime{
		specs:     byName,
		instances: make(map[string][]models.Instance),
		nextPort:  fakeBasePort,
	}
}

// Seed sets the replica count directly, bypassing Frozen and the error
// knobs. Tests use it to establish a starting state.
func (f *FakeRuntime) Seed(service string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resize(service, n)
}

func (f *FakeRuntime) GetReplicaCount(ctx context.Context, service string) (int, error) {
	instances, err := f.ListInstances(ctx, service)
	if err != nil {
		return 0, err
	}
	return len(instances), nil
}

func (f *FakeRuntime) ListInstances(ctx context.Context, service string) ([]models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GetErr != nil {
		return nil, f.GetErr
	}
	if _, ok := f.specs[service]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	out := make([]models.Instance, len(f.instances[service]))
	copy(out, f.instances[service])
	return out, nil
}

func (f *FakeRuntime) SetReplicaCount(ctx context.Context, service string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetErr != nil {
		return f.SetErr
	}
	if _, ok := f.specs[service]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	if n < 0 {
		return fmt.Errorf("replica count must not be negative, got %d", n)
	}
	if f.Frozen {
		return nil
	}

	f.resize(service, n)
	return nil
}

func (f *FakeRuntime) TerminateInstance(ctx context.Context, service, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TerminateErr != nil {
		return f.TerminateErr
	}
	if _, ok := f.specs[service]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	f.TerminateCalls = append(f.TerminateCalls, id)
	if f.Frozen {
		return nil
	}

	// An id under another service is a caller bug; an id that is gone
	// everywhere is an idempotent no-op.
	for owner, list := range f.instances {
		for i, inst := range list {
			if inst.ID != id {
				continue
			}
			if owner != service {
				return fmt.Errorf("%w: instance %s does not belong to %s", ErrInstanceNotFound, id, service)
			}
			f.instances[owner] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *FakeRuntime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// resize adjusts the instance list to exactly n, creating at the tail
// and removing newest first. Callers hold the lock.
func (f *FakeRuntime) resize(service string, n int) {
	list := f.instances[service]
	for len(list) < n {
		list = append(list, models.Instance{
			ID:        fmt.Sprintf("%s-%s", service, uuid.New().String()[:8]),
			Service:   service,
			Address:   "127.0.0.1:" + strconv.Itoa(f.nextPort),
			State:     models.InstanceRunning,
			StartedAt: time.Now().UTC(),
		})
		f.nextPort++
	}
	if len(list) > n {
		list = list[:n]
	}
	f.instances[service] = list
}
