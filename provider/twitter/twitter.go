// Package twitter adapts the redirect/PKCE flow. The backend builds the
// authorization URL and holds both the PKCE verifier and the client secret;
// this adapter only persists what must survive the full-page redirect (the
// CSRF state and the post-login return path) and forwards the code/state
// pair back for the server-side exchange. An arbitrary gap — including a
// process restart — may separate Begin and Complete.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecodeed/authkit/api"
	"github.com/ecodeed/authkit/auth"
	"github.com/ecodeed/authkit/credstore"
	"github.com/ecodeed/authkit/log"
)

type Adapter struct {
	api    *api.Client
	states credstore.StateStore
	log    log.Logger
}

var _ auth.RedirectProvider = (*Adapter)(nil)

type Option func(*Adapter)

func WithLogger(l log.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

func New(client *api.Client, states credstore.StateStore, opts ...Option) *Adapter {
	a := &Adapter{api: client, states: states, log: log.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return auth.ProviderTwitter }

// Begin asks the backend for the authorization URL and writes the redirect
// breadcrumb. The breadcrumb write must succeed before the URL is handed
// out: redirecting without it would lose the return path and the state
// echo check.
func (a *Adapter) Begin(ctx context.Context, returnPath string) (string, error) {
	authURL, state, err := a.api.TwitterAuthURL(ctx)
	if err != nil {
		return "", fmt.Errorf("twitter: begin: %w", err)
	}

	st := credstore.RedirectState{
		Provider:   a.Name(),
		State:      state,
		ReturnPath: returnPath,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.states.SaveState(ctx, a.Name(), st); err != nil {
		return "", fmt.Errorf("twitter: persist redirect state: %w", err)
	}

	a.log.DebugContext(ctx, "twitter redirect started", "return_path", returnPath)
	return authURL, nil
}

// Complete consumes the breadcrumb and forwards the code/state pair to the
// backend for exchange. The breadcrumb is deleted on read, so a replayed
// callback cannot resume twice. A missing breadcrumb is survivable — the
// backend re-verifies state — but a mismatched one is not.
func (a *Adapter) Complete(ctx context.Context, code, state string) (*api.AuthPayload, string, error) {
	if code == "" {
		return nil, "", fmt.Errorf("twitter: callback missing authorization code: %w", auth.ErrMalformedResponse)
	}

	var returnPath string
	st, err := a.states.TakeState(ctx, a.Name())
	switch {
	case err == nil:
		returnPath = st.ReturnPath
		if st.State != "" && state != "" && st.State != state {
			return nil, returnPath, fmt.Errorf("twitter: state mismatch: %w", auth.ErrMalformedResponse)
		}
	case errors.Is(err, credstore.ErrNotFound):
		a.log.WarnContext(ctx, "twitter callback without pending redirect state")
	default:
		return nil, "", fmt.Errorf("twitter: read redirect state: %w", err)
	}

	payload, err := a.api.TwitterCallback(ctx, code, state)
	if err != nil {
		return nil, returnPath, fmt.Errorf("twitter: exchange: %w", err)
	}
	return payload, returnPath, nil
}
