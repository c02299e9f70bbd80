package proxy

import (
	"context"
	"sync"
)

// MemoryRouter is an in-memory Router for tests and demo mode.
type MemoryRouter struct {
	// SetErr fails SetUpstreams; ReloadErr fails Reload.
	SetErr    error
	ReloadErr error

	mu        sync.Mutex
	upstreams map[string][]string
	reloads   int
}

func NewMemoryRouter() *MemoryRouter {
	return &MemoryRouter{upstreams: make(map[string][]string)}
}

func (m *MemoryRouter) SetUpstreams(service string, addrs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetErr != nil {
		return false, m.SetErr
	}

	if equalStrings(m.upstreams[service], addrs) {
		return false, nil
	}

	stored := make([]string, len(addrs))
	copy(stored, addrs)
	m.upstreams[service] = stored
	return true, nil
}

func (m *MemoryRouter) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReloadErr != nil {
		return m.ReloadErr
	}
	m.reloads++
	return nil
}

// Upstreams returns the current set for a service.
func (m *MemoryRouter) Upstreams(service string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.upstreams[service]))
	copy(out, m.upstreams[service])
	return out
}

// Reloads reports how many reloads have been applied.
func (m *MemoryRouter) Reloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloads
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
