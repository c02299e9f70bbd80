package collector

import (
	"context"
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// StaticQuerier answers queries from a canned table keyed by the exact
// expression. Used by tests and demo mode.
type StaticQuerier struct {
	mu     sync.RWMutex
	values map[string]float64
	errs   map[string]error
}

func NewStaticQuerier() *StaticQuerier {
	return &StaticQuerier{
		values: make(map[string]float64),
		errs:   make(map[string]error),
	}
}

func (q *StaticQuerier) Set(expr string, value float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.values[expr] = value
	delete(q.errs, expr)
}

func (q *StaticQuerier) SetError(expr string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.errs[expr] = err
}

func (q *StaticQuerier) Query(_ context.Context, expr string) (float64, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if err, ok := q.errs[expr]; ok {
		return 0, err
	}
	if v, ok := q.values[expr]; ok {
		return v, nil
	}
	return 0, ErrNoData
}

func (q *StaticQuerier) HealthCheck(context.Context) error { return nil }

func (q *StaticQuerier) Close() error { return nil }

// StaticCollector serves pre-seeded snapshots. Demo mode drives it
// through load phases; tests use it to pin exact signal values.
type StaticCollector struct {
	mu    sync.RWMutex
	snaps map[string]models.MetricSnapshot
	fails map[string]error
}

func NewStaticCollector() *StaticCollector {
	return &StaticCollector{
		snaps: make(map[string]models.MetricSnapshot),
		fails: make(map[string]error),
	}
}

func (c *StaticCollector) SetSnapshot(service string, snap models.MetricSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap.Service = service
	c.snaps[service] = snap
	delete(c.fails, service)
}

func (c *StaticCollector) SetError(service string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fails[service] = err
}

func (c *StaticCollector) Sample(_ context.Context, service string) (*models.MetricSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err, ok := c.fails[service]; ok {
		return nil, err
	}

	snap, ok := c.snaps[service]
	if !ok {
		// Unknown service: everything degraded, matching the real
		// collector when no series exist.
		snap = models.MetricSnapshot{Service: service}
		for _, sig := range models.AllSignals() {
			snap.MarkDegraded(sig)
		}
	}
	snap.SampledAt = time.Now()
	return &snap, nil
}
