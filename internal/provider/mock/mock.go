// Package mock provides a scriptable provider.Adapter for tests.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

type step struct {
	data *provider.RawPriceData
	err  error
}

// Adapter replays scripted responses in order; the last one repeats.
type Adapter struct {
	mu         sync.Mutex
	id         string
	dataType   core.DataType
	configured bool
	delay      time.Duration
	steps      []step
	requests   []provider.Request
}

// New creates a configured adapter with no scripted responses.
func New(id string, dt core.DataType) *Adapter {
	return &Adapter{id: id, dataType: dt, configured: true}
}

// Unconfigured marks the adapter as missing credentials.
func (a *Adapter) Unconfigured() *Adapter {
	a.configured = false
	return a
}

// WithDelay makes every Fetch block for d or until the context ends.
func (a *Adapter) WithDelay(d time.Duration) *Adapter {
	a.delay = d
	return a
}

// Returns scripts a successful response.
func (a *Adapter) Returns(p core.Payload) *Adapter {
	a.steps = append(a.steps, step{data: &provider.RawPriceData{
		Payload:   p,
		FetchedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}})
	return a
}

// ReturnsEstimated scripts a successful response flagged as estimated.
func (a *Adapter) ReturnsEstimated(p core.Payload) *Adapter {
	a.steps = append(a.steps, step{data: &provider.RawPriceData{
		Payload:   p,
		FetchedAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Estimated: true,
	}})
	return a
}

// Fails scripts a failure of the given kind.
func (a *Adapter) Fails(kind provider.Kind, msg string) *Adapter {
	a.steps = append(a.steps, step{err: provider.NewError(a.id, kind, errors.New(msg))})
	return a
}

func (a *Adapter) ID() string              { return a.id }
func (a *Adapter) DataType() core.DataType { return a.dataType }
func (a *Adapter) Configured() bool        { return a.configured }

// Fetch returns the next scripted response.
func (a *Adapter) Fetch(ctx context.Context, req provider.Request) (*provider.RawPriceData, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	n := len(a.requests)
	var s step
	switch {
	case len(a.steps) == 0:
		s = step{err: provider.Errorf(a.id, provider.KindNotFound, "no scripted response")}
	case n <= len(a.steps):
		s = a.steps[n-1]
	default:
		s = a.steps[len(a.steps)-1]
	}
	delay := a.delay
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, provider.NewError(a.id, provider.KindTransient, ctx.Err())
		}
	}

	if s.err != nil {
		return nil, s.err
	}
	cp := *s.data
	return &cp, nil
}

// Calls returns how many times Fetch was invoked.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// Requests returns the requests seen so far.
func (a *Adapter) Requests() []provider.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]provider.Request, len(a.requests))
	copy(out, a.requests)
	return out
}

// FX returns a small USD-based FX payload.
func FX() core.Payload {
	return core.Payload{Rates: map[string]float64{
		"USD": 1,
		"EUR": 0.92,
		"GBP": 0.79,
		"AED": 3.6725,
	}}
}

// Metals returns a per-gram metals payload.
func Metals() core.Payload {
	return core.Payload{Rates: map[string]float64{
		"gold":   85.1234,
		"silver": 0.9876,
	}}
}

// Crypto returns a small crypto payload.
func Crypto() core.Payload {
	return core.Payload{Assets: map[string]core.CryptoAsset{
		"BTC": {Name: "Bitcoin", Price: 97000, Rank: 1},
		"ETH": {Name: "Ethereum", Price: 3400, Rank: 2},
	}}
}
