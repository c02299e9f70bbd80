package collector

import (
	"context"
	"fmt"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/OldStager01/service-autoscaler/internal/logger"
)

// PromQuerier runs instant queries against the Prometheus HTTP v1 API.
type PromQuerier struct {
	api     promv1.API
	timeout time.Duration
}

func NewPromQuerier(address string, timeout time.Duration) (*PromQuerier, error) {
	client, err := promapi.NewClient(promapi.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &PromQuerier{
		api:     promv1.NewAPI(client),
		timeout: timeout,
	}, nil
}

func (q *PromQuerier) Query(ctx context.Context, expr string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	value, warnings, err := q.api.Query(ctx, expr, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	if len(warnings) > 0 {
		logger.WithComponent("prom_querier").Warnf("query %q returned warnings: %v", expr, warnings)
	}

	switch v := value.(type) {
	case model.Vector:
		if v.Len() == 0 {
			return 0, ErrNoData
		}
		// Templates are expected to aggregate down to one series; extra
		// series indicate a sloppy query, so flag it but use the first.
		if v.Len() > 1 {
			logger.WithComponent("prom_querier").Warnf("query %q returned %d series, using the first", expr, v.Len())
		}
		return float64(v[0].Value), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("%w: unexpected result type %q", ErrQueryFailed, value.Type())
	}
}

// HealthCheck verifies the API answers queries at all.
func (q *PromQuerier) HealthCheck(ctx context.Context) error {
	_, err := q.Query(ctx, "vector(1)")
	return err
}

func (q *PromQuerier) Close() error {
	return nil
}
