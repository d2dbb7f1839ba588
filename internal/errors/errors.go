// Package errors maps gojobgraph failures onto the HTTP error envelope.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/3leaps/gojobgraph/pkg/annotations"
	"github.com/3leaps/gojobgraph/pkg/jobdoc"
	"github.com/3leaps/gojobgraph/pkg/provider"
	"github.com/3leaps/gojobgraph/pkg/timing"
	"github.com/3leaps/gojobgraph/pkg/workbench"
)

// Error codes carried in HTTPError.Code.
const (
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeInvalidDocument    = "INVALID_DOCUMENT"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeModeConflict       = "MODE_CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeInternal           = "INTERNAL_ERROR"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// HTTPError is the body of every error response.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse wraps HTTPError under the "error" key.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// Error is an error that knows its HTTP status.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeInvalidArgument, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// StoreUnavailable marks err as a failure of the backing job store.
func StoreUnavailable(err error) *Error {
	return &Error{Status: http.StatusBadGateway, Code: CodeStoreUnavailable, Message: "job store request failed", Err: err}
}

// Classify maps err onto a status and code. Unknown errors are internal.
func Classify(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}

	var le *jobdoc.LoadError
	switch {
	case stderrors.As(err, &le):
		return &Error{
			Status:  http.StatusBadRequest,
			Code:    CodeInvalidDocument,
			Message: "invalid job document",
			Details: map[string]any{"errors": le.Errors},
			Err:     err,
		}
	case stderrors.Is(err, workbench.ErrWrongMode):
		return &Error{Status: http.StatusConflict, Code: CodeModeConflict, Message: err.Error(), Err: err}
	case stderrors.Is(err, timing.ErrUnknownJob), provider.IsNotFound(err):
		return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: err.Error(), Err: err}
	case stderrors.Is(err, timing.ErrNegativeDuration), stderrors.Is(err, annotations.ErrInvalidColor):
		return &Error{Status: http.StatusBadRequest, Code: CodeInvalidArgument, Message: err.Error(), Err: err}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &Error{Status: http.StatusGatewayTimeout, Code: CodeTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error", Err: err}
}

// RespondWithError writes the envelope for err.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	e := Classify(err)
	requestID := ""
	if r != nil {
		requestID = r.Header.Get(RequestIDHeader)
	}
	Write(w, requestID, e)
}

// Write renders e as an error response.
func Write(w http.ResponseWriter, requestID string, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPError{
		Code:      e.Code,
		Message:   e.Message,
		RequestID: requestID,
		Details:   e.Details,
	}})
}
