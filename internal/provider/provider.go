// Package provider defines the upstream price source contract and the
// per-data-type fallback chain that tries sources in priority order.
package provider

import (
	"context"
	"time"

	"github.com/newthinker/nisab/internal/core"
)

// Adapter is one upstream price source for one data type.
type Adapter interface {
	// ID returns the stable provider identifier used in config and logs
	ID() string

	// DataType returns the family of prices this adapter serves
	DataType() core.DataType

	// Configured reports whether required credentials are present.
	// Unconfigured adapters are skipped without a network call.
	Configured() bool

	// Fetch retrieves prices for the canonical date. Errors should be *Error.
	Fetch(ctx context.Context, req Request) (*RawPriceData, error)
}

// Request carries the parameters of one fetch.
type Request struct {
	Date time.Time
	// Base is the quote currency; adapters always return USD-based data.
	Base string
	// Today lets adapters choose between "latest" and historical endpoints.
	Today time.Time
}

// IsLatest reports whether the request targets today or a future date.
func (r Request) IsLatest() bool {
	return !core.Day(r.Date).Before(core.Day(r.Today))
}

// RawPriceData is an adapter's successful answer.
type RawPriceData struct {
	Payload   core.Payload
	FetchedAt time.Time
	// Estimated marks approximate values from the static table.
	Estimated bool
}
