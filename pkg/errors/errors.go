// Package errors defines the typed errors shared by the editor service and
// renders them as JSON responses.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType classifies an error. Each type has a default HTTP status.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"

	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// Failures of the project store or another remote dependency.
	ErrorTypeDatabase ErrorType = "DATABASE"
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

var statusByType = map[ErrorType]int{
	ErrorTypeValidation:   http.StatusBadRequest,
	ErrorTypeNotFound:     http.StatusNotFound,
	ErrorTypeConflict:     http.StatusConflict,
	ErrorTypeUnauthorized: http.StatusUnauthorized,
	ErrorTypeForbidden:    http.StatusForbidden,
	ErrorTypeInternal:     http.StatusInternalServerError,
	ErrorTypeTimeout:      http.StatusGatewayTimeout,
	ErrorTypeUnavailable:  http.StatusServiceUnavailable,
	ErrorTypeDatabase:     http.StatusBadGateway,
	ErrorTypeExternal:     http.StatusBadGateway,
}

// Status returns the default HTTP status for t.
func (t ErrorType) Status() int {
	if status, ok := statusByType[t]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Machine-readable codes carried in AppError.Code.
const (
	CodeInvalidJSON     = "INVALID_JSON"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidGraph    = "INVALID_GRAPH"
	CodeBodyTooLarge    = "BODY_TOO_LARGE"
	CodeMissingToken    = "MISSING_TOKEN"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeSessionClosed   = "SESSION_CLOSED"
	CodeSaveFailed      = "SAVE_FAILED"
	CodeCircuitOpen     = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen = "CIRCUIT_HALF_OPEN"
	CodeThrottled       = "THROTTLED"
	CodeTableNotFound   = "TABLE_NOT_FOUND"
)

// AppError is an error with a type, an optional code and details, and the
// HTTP status it is rendered with.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.Code != "" {
		b.WriteString("[" + e.Code + "]")
	}
	b.WriteString(": " + e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches AppErrors with the same type and non-empty code, so coded
// values such as session.ErrClosed work as errors.Is targets.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code != "" && e.Code == t.Code
}

// WithCode sets the machine-readable code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails attaches details rendered in the response body.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause records the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// New creates an AppError of type t rendered with the type's default status.
func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		HTTPStatus: t.Status(),
		StackTrace: captureStackTrace(3),
	}
}

func captureStackTrace(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// NewNotFoundError reports that resource ("project", "session", "node") does
// not exist or is not visible to the caller.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, resource+" not found")
}

func NewConflictError(message string) *AppError {
	return New(ErrorTypeConflict, message)
}

func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(ErrorTypeUnauthorized, message)
}

func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return New(ErrorTypeForbidden, message)
}

func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message)
}

func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, fmt.Sprintf("operation '%s' timed out", operation))
}

func NewUnavailableError(service string) *AppError {
	return New(ErrorTypeUnavailable, fmt.Sprintf("service '%s' is unavailable", service))
}

func NewDatabaseError(operation string, err error) *AppError {
	return New(ErrorTypeDatabase, fmt.Sprintf("database operation '%s' failed", operation)).WithCause(err)
}

func NewExternalError(service string, err error) *AppError {
	return New(ErrorTypeExternal, fmt.Sprintf("external service '%s' error", service)).WithCause(err)
}

// NewSaveFailedError reports a forced flush whose persist failed. The live
// state is kept and the baseline is not advanced.
func NewSaveFailedError(err error) *AppError {
	return New(ErrorTypeExternal, "project could not be saved").
		WithCode(CodeSaveFailed).
		WithCause(err)
}

// FromContext turns a cancelled or expired context error into a timeout
// error for operation. Other errors are returned unchanged.
func FromContext(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeoutError(operation).WithCause(err)
	}
	return err
}

// GetAppError returns the first AppError in err's chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType reports whether err's chain holds an AppError of type t.
func IsType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

func IsNotFound(err error) bool    { return IsType(err, ErrorTypeNotFound) }
func IsValidation(err error) bool  { return IsType(err, ErrorTypeValidation) }
func IsForbidden(err error) bool   { return IsType(err, ErrorTypeForbidden) }
func IsConflict(err error) bool    { return IsType(err, ErrorTypeConflict) }
func IsUnavailable(err error) bool { return IsType(err, ErrorTypeUnavailable) }

// HasCode reports whether err's chain holds an AppError with code.
func HasCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}

// Wrap prefixes message to err. An AppError keeps its type, code and status
// in a copy; any other error becomes an internal error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		wrapped := *appErr
		wrapped.Message = message + ": " + appErr.Message
		wrapped.Cause = err
		return &wrapped
	}
	return NewInternalError(message).WithCause(err)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
