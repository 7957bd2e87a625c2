package api

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the request pipeline. Callers match them with
// errors.Is; the concrete error is always *Error.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrServerUnavailable = errors.New("server unavailable")
	ErrValidationFailed  = errors.New("validation failed")
	ErrNetwork           = errors.New("network error")
	ErrMalformedResponse = errors.New("malformed response")
)

// Error is the classified failure of an API call.
type Error struct {
	// Kind is one of the package sentinels above.
	Kind error
	// Status is the HTTP status code, 0 when the request never got a response.
	Status int
	// Message is safe to show to a user. Never a raw stack trace.
	Message string
	// Fields holds per-field validation messages when Kind is
	// ErrValidationFailed and the backend sent a structured error map.
	Fields map[string]string

	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind sentinel and the underlying cause, so
// errors.Is(err, api.ErrNetwork) and errors.Is(err, context.Canceled) both
// work on the same value.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func newError(kind error, status int, msg string) *Error {
	return &Error{Kind: kind, Status: status, Message: msg}
}

func wrapError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// statusMessage builds the generic user-facing message for a status the
// backend sent no usable body for.
func statusMessage(status int) string {
	return fmt.Sprintf("request failed (HTTP %d)", status)
}
