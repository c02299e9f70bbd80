// Package resilience guards calls to flaky dependencies. The metrics
// querier runs behind a circuit breaker so a dead Prometheus fails fast
// instead of burning the tick deadline on timeouts.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OldStager01/service-autoscaler/internal/logger"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Options struct {
	Name              string
	MaxFailures       int
	ResetTimeout      time.Duration
	HalfOpenSuccesses int
	OnStateChange     func(name string, from, to State)
}

// Breaker is a three-state circuit breaker. Closed counts consecutive
// failures; MaxFailures opens it. After ResetTimeout one probe window
// opens (half-open): HalfOpenSuccesses consecutive successes close the
// circuit, any failure reopens it.
type Breaker struct {
	opts Options

	mu           sync.RWMutex
	state        State
	failures     int
	successes    int
	lastFailTime time.Time
}

func NewBreaker(opts Options) *Breaker {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 30 * time.Second
	}
	if opts.HalfOpenSuccesses <= 0 {
		opts.HalfOpenSuccesses = 2
	}

	return &Breaker{
		opts:  opts,
		state: StateClosed,
	}
}

// Execute runs fn under the breaker. A cancelled context fails without
// touching the failure count; an open circuit returns ErrOpen without
// calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.allow() {
		return ErrOpen
	}

	err := fn()

	if err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(b.lastFailTime) > b.opts.ResetTimeout {
			b.transitionTo(StateHalfOpen)
			return true
		}
		return false

	case StateHalfOpen:
		return true
	}

	return false
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0

	case StateHalfOpen:
		b.successes++
		if b.successes >= b.opts.HalfOpenSuccesses {
			b.transitionTo(StateClosed)
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.opts.MaxFailures {
			b.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		b.transitionTo(StateOpen)
	}
}

func (b *Breaker) transitionTo(newState State) {
	oldState := b.state
	b.state = newState
	b.failures = 0
	b.successes = 0

	entry := logger.WithComponent("circuit_breaker").WithFields(map[string]interface{}{
		"name": b.opts.Name,
		"from": oldState.String(),
		"to":   newState.String(),
	})
	if newState == StateOpen {
		entry.Warn("circuit opened")
	} else {
		entry.Info("circuit state changed")
	}

	if b.opts.OnStateChange != nil {
		go b.opts.OnStateChange(b.opts.Name, oldState, newState)
	}
}

func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
