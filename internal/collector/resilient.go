package collector

import (
	"context"

	"github.com/OldStager01/service-autoscaler/internal/resilience"
)

// ResilientQuerier puts a circuit breaker between the loop and the
// metrics source. With the circuit open every query fails immediately,
// which the sampler turns into degraded signals instead of a stalled
// tick.
type ResilientQuerier struct {
	inner   Querier
	breaker *resilience.Breaker
}

func NewResilientQuerier(inner Querier, breaker *resilience.Breaker) *ResilientQuerier {
	return &ResilientQuerier{
		inner:   inner,
		breaker: breaker,
	}
}

func (q *ResilientQuerier) Query(ctx context.Context, expr string) (float64, error) {
	var value float64
	err := q.breaker.Execute(ctx, func() error {
		var qErr error
		value, qErr = q.inner.Query(ctx, expr)
		return qErr
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (q *ResilientQuerier) HealthCheck(ctx context.Context) error {
	return q.inner.HealthCheck(ctx)
}

func (q *ResilientQuerier) Close() error {
	return q.inner.Close()
}

// BreakerState exposes the breaker for health reporting.
func (q *ResilientQuerier) BreakerState() resilience.State {
	return q.breaker.State()
}
