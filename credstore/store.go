// Package credstore holds the durable client-side credential state: the
// current access/refresh token pair and the pending-redirect breadcrumbs a
// provider writes before a full-page redirect. It is pure storage; token
// lifecycle decisions live in the api and auth packages.
//
// Stores are not a security boundary: anything running with access to the
// backing medium can read the tokens.
package credstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by TakeState when no breadcrumb exists for the
	// requested provider.
	ErrNotFound = errors.New("credstore: not found")
)

// Credentials is the token pair issued by the backend. Both fields are
// optional; an empty pair means "not authenticated".
type Credentials struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Empty reports whether neither token is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Store persists the credential pair.
//
// Write must be atomic with respect to Read: no reader may observe one token
// updated and the other stale. Clear removes both tokens unconditionally;
// it must not depend on any network acknowledgment.
type Store interface {
	Write(ctx context.Context, creds Credentials) error
	Read(ctx context.Context) (Credentials, error)
	Clear(ctx context.Context) error
}

// RedirectState is the breadcrumb written before a full-page redirect so a
// redirect-based provider flow can resume after an arbitrary gap and a
// process restart.
type RedirectState struct {
	Provider   string    `json:"provider"`
	State      string    `json:"state,omitempty"`
	ReturnPath string    `json:"return_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StateStore persists redirect breadcrumbs, namespaced per provider.
// TakeState consumes: a breadcrumb is deleted when read, so a stale callback
// can never be applied twice.
type StateStore interface {
	SaveState(ctx context.Context, provider string, st RedirectState) error
	TakeState(ctx context.Context, provider string) (RedirectState, error)
}
