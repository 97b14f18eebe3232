// Package rest exposes the orchestrator over HTTP+JSON via gin, grounded
// on the teacher's internal/infrastructure/api/rest package (middleware
// shape, request-ID propagation, the APIError/TranslateError pattern).
package rest

import (
	"errors"
	"net/http"

	"github.com/storyforge/storyforge/pkg/story"
)

// APIError is the wire shape for every non-2xx response.
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

var (
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "required parameter is missing", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrNotFound         = NewAPIError("NOT_FOUND", "resource not found", http.StatusNotFound)
)

// pipelineErrorStatus maps a story.ErrorKind to its HTTP status. The
// orchestrator reports fatal kinds as a StatusFailed response body rather
// than an error, so a PipelineError only reaches this mapping when it
// arrives as a returned error.
func pipelineErrorStatus(kind story.ErrorKind) int {
	switch kind {
	case story.ErrKindInvalidRequest:
		return http.StatusBadRequest
	case story.ErrKindUnsatisfiableStructure:
		return http.StatusUnprocessableEntity
	case story.ErrKindDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// TranslateError converts a Go error returned by the orchestrator into an
// APIError. Generate() only ever returns a non-nil error for a fault it
// couldn't even turn into a Failed response (an error that is neither a
// fatal PipelineError nor a deadline expiry), so this is the last-resort
// path.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var pe *story.PipelineError
	if errors.As(err, &pe) {
		return NewAPIError(string(pe.Kind), pe.Error(), pipelineErrorStatus(pe.Kind))
	}
	return NewAPIError("INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}
