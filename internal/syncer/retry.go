package syncer

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/newthinker/nisab/internal/provider"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 3 * time.Second
	defaultBackoffFactor  = 2.0
)

// RetryConfig encapsulates exponential backoff settings.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

type retrier struct {
	cfg RetryConfig
}

func newRetrier(cfg RetryConfig) *retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = defaultBackoffFactor
	}
	return &retrier{cfg: cfg}
}

// do runs fn until it succeeds, fails permanently or exhausts the budget.
// onRetry is called before each backoff wait. A cancelled ctx ends the
// loop during a wait; it never interrupts fn itself.
func (r *retrier) do(ctx context.Context, fn func() error, onRetry func(attempt int, err error)) (attempts int, err error) {
	backoff := r.cfg.InitialBackoff

	for {
		attempts++
		err = fn()
		if err == nil {
			return attempts, nil
		}
		if !shouldRetry(err) || attempts >= r.cfg.MaxAttempts {
			return attempts, err
		}
		if onRetry != nil {
			onRetry(attempts, err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return attempts, err
		}

		backoff = time.Duration(math.Min(
			float64(r.cfg.MaxBackoff),
			float64(backoff)*r.cfg.Multiplier,
		))
	}
}

// shouldRetry accepts only transient and rate-limited provider failures.
func shouldRetry(err error) bool {
	var all *provider.AllProvidersFailedError
	if errors.As(err, &all) {
		return all.Retryable()
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		return pe.Kind.Retryable()
	}
	return false
}
