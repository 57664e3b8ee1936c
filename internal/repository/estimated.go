package repository

import (
	"strings"

	"github.com/newthinker/nisab/internal/core"
	"github.com/newthinker/nisab/internal/provider"
)

// ReasonEstimated prefixes the error of a lookup that only produced
// estimated prices.
const ReasonEstimated = "estimated only"

// EstimatedError is returned by Fill and Refresh when the chain only
// answered from the static fallback. Snapshot holds that answer; Failed
// holds the attempts that failed before it and is nil when the fallback
// was first in the chain.
type EstimatedError struct {
	Snapshot *core.Snapshot
	Failed   *provider.AllProvidersFailedError
}

func (e *EstimatedError) Error() string {
	if e.Failed == nil || len(e.Failed.Failures) == 0 {
		return ReasonEstimated
	}
	return ReasonEstimated + ": " + strings.Join(e.Failed.Reasons(), "; ")
}

// Unwrap exposes the chain failures so callers can judge retryability.
func (e *EstimatedError) Unwrap() error {
	if e.Failed == nil {
		return nil
	}
	return e.Failed
}

func estimated(snap *core.Snapshot, failures []*provider.Error) *EstimatedError {
	e := &EstimatedError{Snapshot: snap}
	if len(failures) > 0 {
		e.Failed = &provider.AllProvidersFailedError{
			DataType: snap.DataType,
			Date:     snap.Date,
			Failures: failures,
		}
	}
	return e
}
