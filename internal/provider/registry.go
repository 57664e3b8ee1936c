package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"go.uber.org/zap"
)

// Observer receives the outcome of every adapter attempt.
type Observer interface {
	ObserveProviderAttempt(providerID string, dt core.DataType, outcome string, seconds float64)
}

// Result is a successful chain resolution.
type Result struct {
	ProviderID string
	Data       *RawPriceData
	// Failures holds the attempts that failed before ProviderID succeeded.
	Failures []*Error
}

// Status describes one adapter in a chain.
type Status struct {
	ID         string        `json:"id"`
	DataType   core.DataType `json:"data_type"`
	Priority   int           `json:"priority"`
	Configured bool          `json:"configured"`
}

// Registry holds the ordered fallback chain of each data type.
type Registry struct {
	mu       sync.RWMutex
	chains   map[core.DataType][]Adapter
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
}

// NewRegistry orders adapters by cfg's priority table. Adapters not named in
// the table are left out; a name without a matching adapter is an error.
func NewRegistry(cfg Config, adapters []Adapter, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	byKey := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byKey[string(a.DataType())+"/"+a.ID()] = a
	}

	chains := make(map[core.DataType][]Adapter)
	for dt, ids := range cfg.Priorities() {
		for _, id := range ids {
			a, ok := byKey[string(dt)+"/"+id]
			if !ok {
				return nil, core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("no %s provider named %q", dt, id))
			}
			chains[dt] = append(chains[dt], a)
		}
	}

	return &Registry{
		chains:  chains,
		timeout: cfg.Timeout(),
		logger:  logger,
	}, nil
}

// NewChain builds a registry from explicit chains, mainly for tests.
func NewChain(timeout time.Duration, logger *zap.Logger, chains map[core.DataType][]Adapter) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{chains: chains, timeout: timeout, logger: logger}
}

// SetObserver attaches an attempt observer.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Chain returns the adapters for a data type in priority order.
func (r *Registry) Chain(dt core.DataType) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, len(r.chains[dt]))
	copy(out, r.chains[dt])
	return out
}

// Status lists every adapter of every chain.
func (r *Registry) Status() []Status {
	var out []Status
	for _, dt := range core.AllDataTypes() {
		for i, a := range r.Chain(dt) {
			out = append(out, Status{
				ID:         a.ID(),
				DataType:   dt,
				Priority:   i + 1,
				Configured: a.Configured(),
			})
		}
	}
	return out
}

// Resolve tries each adapter of the chain in order and returns the first
// success. Unconfigured adapters are recorded as unavailable without a call.
// If every adapter fails the error is *AllProvidersFailedError.
func (r *Registry) Resolve(ctx context.Context, dt core.DataType, req Request) (*Result, error) {
	var failures []*Error

	for _, a := range r.Chain(dt) {
		if !a.Configured() {
			failures = append(failures, Errorf(a.ID(), KindUnavailable, "not configured"))
			r.observe(a.ID(), dt, string(KindUnavailable), 0)
			continue
		}
		if err := ctx.Err(); err != nil {
			failures = append(failures, NewError(a.ID(), KindTransient, err))
			break
		}

		data, perr := r.attempt(ctx, a, req)
		if perr != nil {
			r.logger.Warn("provider failed, trying next",
				zap.String("provider", a.ID()),
				zap.String("data_type", string(dt)),
				zap.String("date", core.FormatDate(req.Date)),
				zap.String("kind", string(perr.Kind)),
				zap.Error(perr.Cause),
			)
			failures = append(failures, perr)
			continue
		}

		r.logger.Debug("provider succeeded",
			zap.String("provider", a.ID()),
			zap.String("data_type", string(dt)),
			zap.String("date", core.FormatDate(req.Date)),
			zap.Int("entries", data.Payload.Len()),
		)
		return &Result{ProviderID: a.ID(), Data: data, Failures: failures}, nil
	}

	return nil, &AllProvidersFailedError{
		DataType: dt,
		Date:     core.Day(req.Date),
		Failures: failures,
	}
}

func (r *Registry) attempt(ctx context.Context, a Adapter, req Request) (*RawPriceData, *Error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	data, err := a.Fetch(callCtx, req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		perr := Classify(a.ID(), err)
		r.observe(a.ID(), a.DataType(), string(perr.Kind), elapsed)
		return nil, perr
	}
	if data == nil || data.Payload.IsEmpty() {
		r.observe(a.ID(), a.DataType(), string(KindNotFound), elapsed)
		return nil, Errorf(a.ID(), KindNotFound, "empty response")
	}
	if data.FetchedAt.IsZero() {
		data.FetchedAt = time.Now().UTC()
	}
	r.observe(a.ID(), a.DataType(), "success", elapsed)
	return data, nil
}

func (r *Registry) observe(id string, dt core.DataType, outcome string, seconds float64) {
	r.mu.RLock()
	o := r.observer
	r.mu.RUnlock()
	if o != nil {
		o.ObserveProviderAttempt(id, dt, outcome, seconds)
	}
}
