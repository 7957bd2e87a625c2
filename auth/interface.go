package auth

import (
	"context"

	"github.com/ecodeed/authkit/api"
)

// Provider is a configured OAuth mechanism registered on the Manager under
// a stable name ("google", "facebook", "twitter").
type Provider interface {
	Name() string
}

// IdentityProvider converts a provider-specific success payload (the token
// set a popup produced, an SDK login result) into the common
// ExternalIdentity shape. It decides nothing about roles or canonical IDs;
// those are backend-assigned during the exchange.
//
// Cancelling the in-flight acquisition (user navigated away) is expressed
// through ctx; adapters map cancellation to ErrCancelled so a stale result
// is never applied to a later session.
type IdentityProvider interface {
	Provider
	Exchange(ctx context.Context, payload any) (ExternalIdentity, error)
}

// RedirectProvider is the two-step redirect flow. Begin returns the
// authorization URL to send the user to, persisting whatever must survive
// the gap (return path, CSRF state) outside process memory. Complete is
// invoked on return with the opaque code/state pair and yields the
// backend's authentication payload plus the persisted return path.
type RedirectProvider interface {
	Provider
	Begin(ctx context.Context, returnPath string) (authURL string, err error)
	Complete(ctx context.Context, code, state string) (payload *api.AuthPayload, returnPath string, err error)
}
