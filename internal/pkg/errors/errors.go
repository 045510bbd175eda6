// Package errors defines AppError, the error carried from callable handlers
// and event ingestion to the HTTP error middleware.
//
// Codes follow the callable-function status names mobile clients already
// switch on; each code has a fixed HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Callable error codes.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInternal         = "INTERNAL"
)

// CodeEventInvalid rejects an ingest envelope that cannot be parsed.
const CodeEventInvalid = "EVENT_INVALID"

var statusByCode = map[string]int{
	CodeInvalidArgument:  http.StatusBadRequest,
	CodeUnauthenticated:  http.StatusUnauthorized,
	CodePermissionDenied: http.StatusForbidden,
	CodeInternal:         http.StatusInternalServerError,
	CodeEventInvalid:     http.StatusBadRequest,
}

// HTTPStatus returns the status for code. Unknown codes are 500.
func HTTPStatus(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AppError is a structured application error with HTTP status and error
// code. Err is logged but never sent to the caller.
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError whose status is derived from code.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: HTTPStatus(code)}
}

// WithCause records the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// WithParam adds one structured detail for the caller.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{}, 1)
	}
	e.Params[key] = value
	return e
}

// InvalidArgument names the offending request field.
func InvalidArgument(field, message string) *AppError {
	return New(CodeInvalidArgument, message).WithParam("field", field)
}

// Unauthenticated is returned to callers without a verified identity.
func Unauthenticated() *AppError {
	return New(CodeUnauthenticated, "the function must be called while authenticated")
}

// Internal hides a backend failure behind message.
func Internal(err error, message string) *AppError {
	return New(CodeInternal, message).WithCause(err)
}

// As returns the AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
