package endpoint

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/armelgeek/better-query/internal/web/ratelimit"
)

// Kind classifies the terminal failure of a pipeline run
type Kind string

const (
	KindBadRequest          Kind = "BadRequest"
	KindNotFound            Kind = "NotFound"
	KindValidationFailed    Kind = "ValidationFailed"
	KindForbidden           Kind = "Forbidden"
	KindRateLimitExceeded   Kind = "RateLimitExceeded"
	KindHookExecutionFailed Kind = "HookExecutionFailed"
	KindAdapterFailure      Kind = "AdapterFailure"
)

// Error is the single terminal error of a failed pipeline run
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details interface{}
	// RateLimit is set on RateLimitExceeded
	RateLimit *ratelimit.RateLimitInfo
	cause     error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrBadRequest          = &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: "Bad request"}
	ErrNotFound            = &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: "Resource not found"}
	ErrValidationFailed    = &Error{Kind: KindValidationFailed, Status: http.StatusBadRequest, Message: "Validation failed"}
	ErrForbidden           = &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: "Forbidden"}
	ErrRateLimitExceeded   = &Error{Kind: KindRateLimitExceeded, Status: http.StatusTooManyRequests, Message: "Too many requests"}
	ErrHookExecutionFailed = &Error{Kind: KindHookExecutionFailed, Status: http.StatusInternalServerError, Message: "Hook execution failed"}
	ErrAdapterFailure      = &Error{Kind: KindAdapterFailure, Status: http.StatusInternalServerError, Message: "Adapter failure"}
)

func newError(sentinel *Error, message string, details interface{}, cause error) *Error {
	if message == "" {
		message = sentinel.Message
	}
	return &Error{
		Kind:    sentinel.Kind,
		Status:  sentinel.Status,
		Message: message,
		Details: details,
		cause:   cause,
	}
}

func notFound() *Error {
	return newError(ErrNotFound, "", nil, nil)
}

func forbidden(message string) *Error {
	return newError(ErrForbidden, message, nil, nil)
}

func badRequest(format string, args ...interface{}) *Error {
	return newError(ErrBadRequest, fmt.Sprintf(format, args...), nil, nil)
}

// adapterFailure surfaces the storage error message verbatim
func adapterFailure(err error) *Error {
	return newError(ErrAdapterFailure, err.Error(), nil, err)
}

// AsError converts any error into an *Error; unknown errors become AdapterFailure
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return adapterFailure(err)
}

// ConfigurationError reports an invalid resource or registration setup
type ConfigurationError struct {
	Resource string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Resource == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: resource %s: %s", e.Resource, e.Reason)
}

func configError(resource, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Resource: resource, Reason: fmt.Sprintf(format, args...)}
}

// BadRequestf builds a BadRequest error for malformed request parameters
func BadRequestf(format string, args ...interface{}) *Error {
	return badRequest(format, args...)
}
