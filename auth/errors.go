package auth

import "errors"

var (
	// ErrCancelled means the user aborted an OAuth flow (closed the popup,
	// navigated away). Not a failure: callers show nothing and the session
	// is left exactly as it was.
	ErrCancelled = errors.New("authentication cancelled")

	// ErrUnavailable means the provider mechanism cannot run in this
	// environment (popup blocked, SDK script never loaded). User-facing,
	// not retryable without an environment change.
	ErrUnavailable = errors.New("authentication provider unavailable")

	// ErrMalformedResponse means the backend or provider violated its
	// contract (missing id/email, success flag without tokens). Logged and
	// surfaced as a generic failure, never silently swallowed.
	ErrMalformedResponse = errors.New("malformed authentication response")

	// ErrProviderNotFound is returned when no adapter is registered under
	// the requested name.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrInvalidTransition is returned when a flow is started from a
	// session state that does not allow it.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrNotAuthenticated is returned by operations that require an
	// authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")
)
