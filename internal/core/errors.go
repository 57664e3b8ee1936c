// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Lookup errors
	ErrSnapshotNotFound   = &Error{Code: "SNAPSHOT_NOT_FOUND", Message: "snapshot not found"}
	ErrPricingUnavailable = &Error{Code: "PRICING_UNAVAILABLE", Message: "no pricing data available"}
	ErrInvalidRequest     = &Error{Code: "INVALID_REQUEST", Message: "invalid request"}

	// Store errors
	ErrStoreIO  = &Error{Code: "STORE_IO", Message: "local store I/O failed"}
	ErrRemoteIO = &Error{Code: "REMOTE_IO", Message: "remote store I/O failed"}

	// Provider errors
	ErrProviderFailed = &Error{Code: "PROVIDER_FAILED", Message: "provider request failed"}

	// Sync errors
	ErrSyncCancelled = &Error{Code: "SYNC_CANCELLED", Message: "sync cancelled"}
	ErrJobNotFound   = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Auth errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}
)
