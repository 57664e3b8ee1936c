// internal/api/response/response.go
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/nisab/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Cause   string   `json:"cause,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// reasoner is implemented by errors that carry per-provider failures.
type reasoner interface {
	Reasons() []string
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	var r reasoner
	switch {
	case errors.As(err, &r) && errors.Is(err, core.ErrPricingUnavailable):
		detail.Code = core.ErrPricingUnavailable.Code
		detail.Message = core.ErrPricingUnavailable.Message
		detail.Cause = err.Error()
		detail.Reasons = r.Reasons()
	case errors.As(err, &coreErr):
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}

	resp := ErrorResponse{Error: detail}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Status maps an error to the HTTP status it should be reported with.
func Status(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrPricingUnavailable),
		errors.Is(err, core.ErrSnapshotNotFound),
		errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConfigInvalid), errors.Is(err, core.ErrConfigMissing):
		return http.StatusConflict
	case errors.Is(err, core.ErrRemoteIO), errors.Is(err, core.ErrStoreIO):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Fail writes err with the status Status picks for it.
func Fail(w http.ResponseWriter, err error) {
	Error(w, Status(err), err)
}
