package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// MemoryStore keeps everything in maps. It backs tests and demo mode and
// mirrors the Postgres semantics exactly, including ErrNotFound.
type MemoryStore struct {
	mu        sync.RWMutex
	overrides map[string]models.ManualOverride
	states    map[string]models.ScalingState
	log       []models.ScalingLogEntry
	nextID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		overrides: make(map[string]models.ManualOverride),
		states:    make(map[string]models.ScalingState),
		nextID:    1,
	}
}

func (s *MemoryStore) GetOverride(_ context.Context, service string) (*models.ManualOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overrides[service]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *MemoryStore) SetOverride(_ context.Context, o models.ManualOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overrides[o.Service] = o
	return nil
}

func (s *MemoryStore) ClearOverride(_ context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.overrides[service]; !ok {
		return ErrNotFound
	}
	delete(s.overrides, service)
	return nil
}

func (s *MemoryStore) ListOverrides(_ context.Context) ([]models.ManualOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	overrides := make([]models.ManualOverride, 0, len(s.overrides))
	for _, o := range s.overrides {
		overrides = append(overrides, o)
	}
	sort.Slice(overrides, func(i, j int) bool {
		return overrides[i].Service < overrides[j].Service
	})
	return overrides, nil
}

func (s *MemoryStore) GetState(_ context.Context, service string) (*models.ScalingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[service]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (s *MemoryStore) SetState(_ context.Context, st models.ScalingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[st.Service] = st
	return nil
}

func (s *MemoryStore) AppendLog(_ context.Context, e *models.ScalingLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(e)
	return nil
}

func (s *MemoryStore) appendLocked(e *models.ScalingLogEntry) {
	e.ID = s.nextID
	s.nextID++
	s.log = append(s.log, *e)
}

func (s *MemoryStore) QueryLog(_ context.Context, service string, from, to time.Time, limit int) ([]models.ScalingLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.ScalingLogEntry
	for _, e := range s.log {
		if e.Service != service {
			continue
		}
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		entries = append(entries, e)
	}

	// Newest first, like the Postgres backend.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStore) RecordScaling(_ context.Context, e *models.ScalingLogEntry, st models.ScalingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(e)
	s.states[st.Service] = st
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
