package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/nisab/internal/core"
)

// Kind classifies a failed adapter attempt
type Kind string

const (
	// KindUnavailable means the adapter is not configured
	KindUnavailable Kind = "unavailable"
	// KindNotFound means the provider has no data for the date
	KindNotFound Kind = "not_found"
	// KindRateLimited means the provider throttled us
	KindRateLimited Kind = "rate_limited"
	// KindTransient covers network errors, timeouts and 5xx
	KindTransient Kind = "transient"
	// KindMalformed means the response could not be parsed
	KindMalformed Kind = "malformed"
)

// Retryable reports whether retrying later could change the outcome.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// Error is the failure of one adapter attempt.
type Error struct {
	Provider string
	Kind     Kind
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an attempt error.
func NewError(provider string, kind Kind, cause error) *Error {
	return &Error{Provider: provider, Kind: kind, Cause: cause}
}

// Errorf builds an attempt error with a formatted cause.
func Errorf(provider string, kind Kind, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// Classify converts any adapter error into an *Error. Anything that is
// not already classified (timeouts, transport failures) is transient.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		return pe
	}
	return NewError(provider, KindTransient, err)
}

// AllProvidersFailedError is returned when every adapter in a chain failed.
// Failures are in attempt order.
type AllProvidersFailedError struct {
	DataType core.DataType
	Date     time.Time
	Failures []*Error
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	msg := fmt.Sprintf("all providers failed for %s on %s", e.DataType, core.FormatDate(e.Date))
	if len(parts) == 0 {
		return msg + ": no providers configured"
	}
	return msg + ": " + strings.Join(parts, "; ")
}

// Is makes the error match core.ErrPricingUnavailable.
func (e *AllProvidersFailedError) Is(target error) bool {
	t, ok := target.(*core.Error)
	return ok && t.Code == core.ErrPricingUnavailable.Code
}

// Retryable reports whether any attempt failed for a retryable reason.
func (e *AllProvidersFailedError) Retryable() bool {
	for _, f := range e.Failures {
		if f.Kind.Retryable() {
			return true
		}
	}
	return false
}

// Reasons returns the failures as "provider (kind): cause" strings.
func (e *AllProvidersFailedError) Reasons() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Error())
	}
	return out
}
