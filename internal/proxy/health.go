package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// Prober answers whether a single replica is healthy. The reconciler
// supplies the fan-out; implementations only need to run one check.
type Prober interface {
	Probe(ctx context.Context, probeURL string, timeout time.Duration) error
}

// HTTPProber treats any 2xx answered within the timeout as healthy.
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{client: &http.Client{}}
}

func (p *HTTPProber) Probe(ctx context.Context, probeURL string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unhealthy status %d", resp.StatusCode)
	}
	return nil
}

// StaticProber reports health from a fixed table keyed by instance
// address. Demo mode and tests use it where no replica actually listens.
type StaticProber struct {
	mu        sync.Mutex
	unhealthy map[string]bool
}

func NewStaticProber() *StaticProber {
	return &StaticProber{unhealthy: make(map[string]bool)}
}

// SetHealthy marks one address up or down.
func (p *StaticProber) SetHealthy(addr string, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if healthy {
		delete(p.unhealthy, addr)
	} else {
		p.unhealthy[addr] = true
	}
}

func (p *StaticProber) Probe(ctx context.Context, probeURL string, timeout time.Duration) error {
	u, err := url.Parse(probeURL)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unhealthy[u.Host] {
		return fmt.Errorf("address %s marked unhealthy", u.Host)
	}
	return nil
}

// healthyInstances probes every instance with bounded parallelism and
// returns the ones that passed, preserving input order. Failures are
// logged, not returned: an unreachable replica is excluded this round
// and re-probed on the next reconcile.
func healthyInstances(ctx context.Context, prober Prober, spec *models.ServiceSpec, instances []models.Instance, parallelism int) []models.Instance {
	if len(instances) == 0 {
		return nil
	}
	if parallelism < 1 {
		parallelism = 1
	}

	healthy := make([]bool, len(instances))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for i, inst := range instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			probeURL := "http://" + inst.Address + spec.HealthCheckPath
			if err := prober.Probe(ctx, probeURL, spec.HealthCheckTimeout); err != nil {
				logger.WithService(spec.Name).
					WithField("instance", inst.ID).
					WithField("address", inst.Address).
					WithError(err).
					Warn("Health check failed")
				return
			}
			healthy[i] = true
		}()
	}
	wg.Wait()

	out := make([]models.Instance, 0, len(instances))
	for i, ok := range healthy {
		if ok {
			out = append(out, instances[i])
		}
	}
	return out
}
