// Package auth owns the session state machine of the Ecodeed client: the
// canonical User, the anonymous/authenticating/authenticated/error lifecycle
// and the sign-in flows that drive it. Provider adapters plug in through a
// registry; every backend call goes through the api request pipeline.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/ecodeed/authkit/api"
	"github.com/ecodeed/authkit/credstore"
	"github.com/ecodeed/authkit/event"
	"github.com/ecodeed/authkit/log"
)

// Manager is the single writer of session state. Reads are cheap copies;
// all mutation goes through the transition methods below.
type Manager struct {
	mu        sync.RWMutex
	session   Session
	providers map[string]Provider

	api       *api.Client
	store     credstore.Store
	states    credstore.StateStore
	refresher *api.Refresher
	bus       *event.Bus[SessionChanged]
	log       log.Logger
}

type ManagerOption func(*Manager)

func WithLogger(l log.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithStateStore supplies the store for pending-redirect breadcrumbs; only
// needed when a redirect provider or HandleRedirectCallback is used.
func WithStateStore(s credstore.StateStore) ManagerOption {
	return func(m *Manager) { m.states = s }
}

// WithBroker registers the session event bus on an application-wide broker.
func WithBroker(b *event.Broker) ManagerOption {
	return func(m *Manager) { b.RegisterBus(m.bus) }
}

// WithRefresher hooks the refresh coordinator's terminal failure into the
// session lifecycle: when a refresh is irrecoverably rejected, the session
// drops to anonymous.
func WithRefresher(r *api.Refresher) ManagerOption {
	return func(m *Manager) {
		m.refresher = r
		r.OnSessionExpired(m.sessionExpired)
	}
}

func NewManager(client *api.Client, store credstore.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		session:   Session{Status: StatusAnonymous},
		providers: make(map[string]Provider),
		api:       client,
		store:     store,
		bus:       event.NewBus[SessionChanged](),
		log:       log.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Extend registers a provider adapter under its own name.
func (m *Manager) Extend(p Provider) error {
	if p == nil || p.Name() == "" {
		return errors.New("provider must have a name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
	return nil
}

func (m *Manager) Provider(name string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.providers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("provider %q: %w", name, ErrProviderNotFound)
}

func (m *Manager) HasProvider(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.providers[name]
	return ok
}

// Session returns a snapshot. The User pointer is shared and read-only.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Subscribe attaches a handler to session transitions.
func (m *Manager) Subscribe(h event.Handler[SessionChanged]) {
	m.bus.Subscribe(h)
}

// Events exposes the bus, e.g. for async subscription or broker wiring.
func (m *Manager) Events() *event.Bus[SessionChanged] {
	return m.bus
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*User, error) {
	if _, err := m.beginAuth(ctx, "password"); err != nil {
		return nil, err
	}

	payload, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.failAuth(ctx, err)
		return nil, err
	}
	return m.completeAuth(ctx, payload)
}

// SignUp registers a new account and signs it in. A password/confirmation
// mismatch is rejected locally before any network call.
func (m *Manager) SignUp(ctx context.Context, in api.RegisterInput) (*User, error) {
	if in.Password != in.ConfirmPassword {
		return nil, &api.Error{
			Kind:    api.ErrValidationFailed,
			Message: "please correct the highlighted fields",
			Fields:  map[string]string{"confirm_password": "Passwords don't match"},
		}
	}

	if _, err := m.beginAuth(ctx, "register"); err != nil {
		return nil, err
	}

	payload, err := m.api.Register(ctx, in)
	if err != nil {
		m.failAuth(ctx, err)
		return nil, err
	}
	return m.completeAuth(ctx, payload)
}

// SignInWith runs a single-step provider flow (popup or SDK): the adapter
// normalizes its payload into an ExternalIdentity, which is exchanged with
// the backend for the canonical user and a token pair.
//
// A cancelled acquisition restores the prior session untouched and returns
// ErrCancelled; callers show nothing for it.
func (m *Manager) SignInWith(ctx context.Context, provider string, payload any) (*User, error) {
	p, err := m.Provider(provider)
	if err != nil {
		return nil, err
	}
	ip, ok := p.(IdentityProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q requires the redirect flow", provider)
	}

	prev, err := m.beginAuth(ctx, provider)
	if err != nil {
		return nil, err
	}

	ident, err := ip.Exchange(ctx, payload)
	if err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
			m.setSession(context.WithoutCancel(ctx), prev)
			return nil, ErrCancelled
		}
		m.failAuth(ctx, err)
		return nil, err
	}

	resp, err := m.api.SocialExchange(ctx, provider, exchangeBody(provider, ident))
	if err != nil {
		m.failAuth(ctx, err)
		return nil, err
	}
	return m.completeAuth(ctx, resp)
}

// BeginRedirect starts a redirect provider flow and returns the URL to send
// the user to. returnPath is persisted by the adapter and handed back by
// CompleteRedirect after the round trip.
func (m *Manager) BeginRedirect(ctx context.Context, provider, returnPath string) (string, error) {
	rp, err := m.redirectProvider(provider)
	if err != nil {
		return "", err
	}

	if _, err := m.beginAuth(ctx, provider); err != nil {
		return "", err
	}

	authURL, err := rp.Begin(ctx, returnPath)
	if err != nil {
		m.failAuth(ctx, err)
		return "", err
	}
	return authURL, nil
}

// CompleteRedirect finishes a redirect flow with the code/state pair the
// provider sent back. It tolerates running in a fresh process: the redirect
// gap may have included a full restart.
func (m *Manager) CompleteRedirect(ctx context.Context, provider, code, state string) (*User, string, error) {
	rp, err := m.redirectProvider(provider)
	if err != nil {
		return nil, "", err
	}
	if err := m.beginAuthResumable(ctx, provider); err != nil {
		return nil, "", err
	}

	payload, returnPath, err := rp.Complete(ctx, code, state)
	if err != nil {
		m.failAuth(ctx, err)
		return nil, returnPath, err
	}

	u, err := m.completeAuth(ctx, payload)
	return u, returnPath, err
}

// HandleRedirectCallback consumes a token-bearing callback URL, the shape
// the backend redirects to after completing the exchange itself:
// success, access, refresh, provider, and optionally error as query
// parameters. success=true without both tokens is a protocol violation and
// fails without touching the credential store.
func (m *Manager) HandleRedirectCallback(ctx context.Context, query url.Values) (*User, string, error) {
	provider := query.Get("provider")
	if provider == "" {
		provider = ProviderTwitter
	}

	var returnPath string
	if m.states != nil {
		if st, err := m.states.TakeState(ctx, provider); err == nil {
			returnPath = st.ReturnPath
		}
	}

	if err := m.beginAuthResumable(ctx, provider); err != nil {
		return nil, returnPath, err
	}

	if msg := query.Get("error"); msg != "" {
		err := fmt.Errorf("provider reported: %s", msg)
		m.failAuth(ctx, err)
		return nil, returnPath, err
	}

	if query.Get("success") != "true" {
		err := fmt.Errorf("callback carried no success flag: %w", ErrMalformedResponse)
		m.failAuth(ctx, err)
		return nil, returnPath, err
	}

	access, refresh := query.Get("access"), query.Get("refresh")
	if access == "" || refresh == "" {
		m.log.WarnContext(ctx, "redirect callback missing tokens", "provider", provider)
		err := fmt.Errorf("success callback missing tokens: %w", ErrMalformedResponse)
		m.failAuth(ctx, err)
		return nil, returnPath, err
	}

	// Fetch the profile with the explicit token first: credentials are only
	// persisted once the user record proves normalizable.
	raw, err := m.api.ProfileWithToken(ctx, access)
	if err != nil {
		m.failAuth(ctx, err)
		return nil, returnPath, err
	}

	u, err := m.authSucceeded(ctx, raw, credstore.Credentials{AccessToken: access, RefreshToken: refresh})
	return u, returnPath, err
}

// Refresh forces a token refresh outside the request pipeline, e.g. on app
// resume after a long sleep. Concurrent calls share one exchange.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.refresher == nil {
		return errors.New("no refresher configured")
	}
	return m.refresher.Refresh(ctx)
}

// Profile re-fetches the canonical user and, when authenticated, replaces
// the session's user record.
func (m *Manager) Profile(ctx context.Context) (*User, error) {
	raw, err := m.api.Profile(ctx)
	if err != nil {
		return nil, err
	}
	return m.adoptProfile(ctx, raw)
}

// UpdateProfile applies a partial profile edit. The session's user is only
// replaced by a successfully normalized response; a malformed one never
// overwrites a valid session.
func (m *Manager) UpdateProfile(ctx context.Context, in api.ProfileUpdate) (*User, error) {
	raw, err := m.api.UpdateProfile(ctx, in)
	if err != nil {
		return nil, err
	}
	return m.adoptProfile(ctx, raw)
}

// SignOut ends the session. The backend is notified best-effort so it can
// blacklist the refresh token, but an unreachable server never blocks local
// logout: the store is cleared and the session dropped regardless.
func (m *Manager) SignOut(ctx context.Context) error {
	creds, err := m.store.Read(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "could not read credentials during sign-out", "error", err)
	}
	if err == nil && creds.RefreshToken != "" {
		if err := m.api.NotifySignOut(ctx, creds.RefreshToken); err != nil {
			m.log.WarnContext(ctx, "sign-out notification failed", "error", err)
		}
	}

	if err := m.store.Clear(ctx); err != nil {
		m.log.ErrorContext(ctx, "failed to clear credentials", "error", err)
	}

	m.setSession(context.WithoutCancel(ctx), Session{Status: StatusAnonymous})
	return nil
}

// DeleteAccount removes the account server-side, then behaves like SignOut.
// An API failure leaves the session intact.
func (m *Manager) DeleteAccount(ctx context.Context) error {
	cur := m.Session()
	if !cur.Authenticated() {
		return ErrNotAuthenticated
	}

	if err := m.api.DeleteAccount(ctx, cur.User.ID); err != nil {
		return err
	}

	if err := m.store.Clear(ctx); err != nil {
		m.log.ErrorContext(ctx, "failed to clear credentials", "error", err)
	}
	m.setSession(context.WithoutCancel(ctx), Session{Status: StatusAnonymous})
	return nil
}

func (m *Manager) redirectProvider(name string) (RedirectProvider, error) {
	p, err := m.Provider(name)
	if err != nil {
		return nil, err
	}
	rp, ok := p.(RedirectProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not use the redirect flow", name)
	}
	return rp, nil
}

// beginAuth moves anonymous|error to authenticating and returns the prior
// session for cancellation rollback.
func (m *Manager) beginAuth(ctx context.Context, method string) (Session, error) {
	m.mu.Lock()
	prev := m.session
	if prev.Status != StatusAnonymous && prev.Status != StatusError {
		m.mu.Unlock()
		return prev, fmt.Errorf("begin %s authentication while %s: %w", method, prev.Status, ErrInvalidTransition)
	}
	m.session = Session{Status: StatusAuthenticating}
	m.mu.Unlock()

	m.publish(ctx, prev, Session{Status: StatusAuthenticating})
	m.log.DebugContext(ctx, "authentication started", "method", method)
	return prev, nil
}

// beginAuthResumable is beginAuth for redirect returns: if the session is
// already authenticating (Begin ran in this same process), that is fine.
func (m *Manager) beginAuthResumable(ctx context.Context, method string) error {
	if m.Session().Status == StatusAuthenticating {
		return nil
	}
	_, err := m.beginAuth(ctx, method)
	return err
}

func (m *Manager) completeAuth(ctx context.Context, payload *api.AuthPayload) (*User, error) {
	return m.authSucceeded(ctx, payload.User, payload.Credentials())
}

// authSucceeded validates and adopts an authentication result. An invalid
// user record moves to the error state without writing credentials: a
// partial session must never be persisted.
func (m *Manager) authSucceeded(ctx context.Context, rawUser []byte, creds credstore.Credentials) (*User, error) {
	u := NormalizeRaw(rawUser)
	if u == nil {
		m.log.WarnContext(ctx, "authentication response user record missing id or email")
		err := fmt.Errorf("normalize user: %w", ErrMalformedResponse)
		m.failAuth(ctx, err)
		return nil, err
	}

	if err := m.store.Write(ctx, creds); err != nil {
		m.failAuth(ctx, fmt.Errorf("persist credentials: %w", err))
		return nil, fmt.Errorf("persist credentials: %w", err)
	}

	m.setSession(ctx, Session{Status: StatusAuthenticated, User: u})
	m.log.InfoContext(ctx, "authenticated", "user", u.ID, "role", u.Role)
	return u, nil
}

// failAuth records a classified failure. The credential store is untouched:
// nothing was written on this path.
func (m *Manager) failAuth(ctx context.Context, err error) {
	m.setSession(context.WithoutCancel(ctx), Session{Status: StatusError, Error: userMessage(err)})
}

// sessionExpired is the refresh coordinator's terminal-failure hook:
// authenticated drops to anonymous with both tokens already gone.
func (m *Manager) sessionExpired(ctx context.Context) {
	// Clearing is unconditional even though the coordinator already did it.
	if err := m.store.Clear(ctx); err != nil {
		m.log.ErrorContext(ctx, "failed to clear credentials", "error", err)
	}

	if m.Session().Status != StatusAuthenticated {
		return
	}
	m.log.InfoContext(ctx, "session expired, dropping to anonymous")
	m.setSession(context.WithoutCancel(ctx), Session{Status: StatusAnonymous})
}

func (m *Manager) adoptProfile(ctx context.Context, raw []byte) (*User, error) {
	u := NormalizeRaw(raw)
	if u == nil {
		return nil, fmt.Errorf("normalize profile: %w", ErrMalformedResponse)
	}

	m.mu.Lock()
	prev := m.session
	changed := prev.Status == StatusAuthenticated
	if changed {
		m.session = Session{Status: StatusAuthenticated, User: u}
	}
	m.mu.Unlock()

	if changed {
		m.publish(ctx, prev, Session{Status: StatusAuthenticated, User: u})
	}
	return u, nil
}

func (m *Manager) setSession(ctx context.Context, next Session) {
	m.mu.Lock()
	prev := m.session
	m.session = next
	m.mu.Unlock()

	m.publish(ctx, prev, next)
}

func (m *Manager) publish(ctx context.Context, prev, next Session) {
	if err := m.bus.Publish(ctx, SessionChanged{Previous: prev, Current: next}); err != nil {
		m.log.WarnContext(ctx, "session event handler failed", "error", err)
	}
}

// userMessage reduces any flow error to a single human-readable line.
func userMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return "the server sent an invalid response, please try again"
	case errors.Is(err, ErrUnavailable):
		return "this sign-in method is currently unavailable"
	default:
		return "sign-in failed, please try again"
	}
}
