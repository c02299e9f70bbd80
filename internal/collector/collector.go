// Package collector samples the five per-service signals from the
// metrics source. Sampling is strictly read-only: nothing here mutates
// runtime or store state.
package collector

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/config"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

var (
	// ErrQueryFailed indicates the metrics source rejected or failed a query
	ErrQueryFailed = errors.New("metrics query failed")

	// ErrNoData indicates the query succeeded but matched no series
	ErrNoData = errors.New("query returned no data")
)

// Querier executes one expression against the metrics source and
// reduces it to a single value.
type Querier interface {
	Query(ctx context.Context, expr string) (float64, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Collector produces one MetricSnapshot per service per tick.
type Collector interface {
	Sample(ctx context.Context, service string) (*models.MetricSnapshot, error)
}

// PromCollector builds one query per signal from the configured
// templates and degrades any failed signal to the neutral value instead
// of failing the sample.
type PromCollector struct {
	querier Querier
	queries config.QueryTemplates
	window  string
}

func NewPromCollector(querier Querier, cfg config.MetricsConfig) *PromCollector {
	return &PromCollector{
		querier: querier,
		queries: cfg.Queries,
		window:  cfg.Window,
	}
}

func (c *PromCollector) Sample(ctx context.Context, service string) (*models.MetricSnapshot, error) {
	snap := &models.MetricSnapshot{
		Service:   service,
		SampledAt: time.Now(),
	}

	for _, sig := range models.AllSignals() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		expr := c.buildQuery(sig, service)
		value, err := c.querier.Query(ctx, expr)
		if err != nil {
			logger.WithService(service).WithFields(map[string]interface{}{
				"component": "collector",
				"signal":    string(sig),
				"error":     err.Error(),
			}).Warn("signal query failed, degrading to neutral value")
			snap.MarkDegraded(sig)
			continue
		}

		snap.SetValue(sig, normalizeValue(value))
	}

	return snap, nil
}

func (c *PromCollector) buildQuery(sig models.Signal, service string) string {
	r := strings.NewReplacer("$service", service, "$window", c.window)
	return r.Replace(c.queries.For(sig))
}

// normalizeValue guards against NaN, infinities and negative rates from
// counter resets. Decisions must only ever see finite non-negative
// values.
func normalizeValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
