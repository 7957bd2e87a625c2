package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ecodeed/authkit/credstore"
	"github.com/ecodeed/authkit/log"
)

// Refresher exchanges the stored refresh token for a new access token.
//
// Concurrent callers are collapsed into a single in-flight exchange: with a
// rotating refresh token, N parallel refresh calls would invalidate each
// other and strand an otherwise valid session. All callers block on the one
// exchange and share its result.
type Refresher struct {
	baseURL string
	http    *http.Client
	store   credstore.Store
	log     log.Logger

	group singleflight.Group

	mu         sync.RWMutex
	onTerminal func(context.Context)
}

type RefresherOption func(*Refresher)

func WithRefresherHTTPClient(h *http.Client) RefresherOption {
	return func(r *Refresher) { r.http = h }
}

func WithRefresherLogger(l log.Logger) RefresherOption {
	return func(r *Refresher) { r.log = l }
}

func NewRefresher(baseURL string, store credstore.Store, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		store:   store,
		log:     log.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnSessionExpired registers the hook invoked after a terminal refresh
// failure, once the store has been cleared. The session manager uses it to
// drive its authenticated-to-anonymous transition.
func (r *Refresher) OnSessionExpired(fn func(context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTerminal = fn
}

// Refresh performs (or joins) a token refresh. On success the new token pair
// has been durably written before Refresh returns, so a caller may
// immediately reissue its request against the store.
func (r *Refresher) Refresh(ctx context.Context) error {
	_, err, shared := r.group.Do("refresh", func() (any, error) {
		return nil, r.refresh(ctx)
	})
	if shared {
		r.log.DebugContext(ctx, "joined in-flight token refresh")
	}
	return err
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (r *Refresher) refresh(ctx context.Context) error {
	creds, err := r.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	if creds.RefreshToken == "" {
		r.expire(ctx)
		return newError(ErrUnauthorized, 0, "no refresh token available")
	}

	payload, err := json.Marshal(map[string]string{"refresh": creds.RefreshToken})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/"+refreshPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		// Transient: an unreachable server must not log the user out.
		return wrapError(ErrNetwork, "could not reach the server to refresh the session", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return wrapError(ErrNetwork, "connection interrupted during token refresh", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return newError(ErrServerUnavailable, resp.StatusCode, "the server is temporarily unavailable")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// The refresh token was rejected (expired, rotated away, or
		// blacklisted). Terminal: the session cannot be recovered.
		r.log.InfoContext(ctx, "refresh token rejected", "status", resp.StatusCode)
		r.expire(ctx)
		return newError(ErrUnauthorized, resp.StatusCode, "your session has expired, please sign in again")
	}

	var out refreshResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return wrapError(ErrMalformedResponse, "unreadable refresh response", err)
	}
	if out.Access == "" {
		return newError(ErrMalformedResponse, resp.StatusCode, "refresh response carried no access token")
	}

	next := credstore.Credentials{
		AccessToken:  out.Access,
		RefreshToken: creds.RefreshToken,
	}
	// Rotating backends return a replacement refresh token; reuse-allowing
	// backends omit it and the old one stays valid.
	if out.Refresh != "" {
		next.RefreshToken = out.Refresh
	}
	if err := r.store.Write(ctx, next); err != nil {
		return fmt.Errorf("persist refreshed credentials: %w", err)
	}

	r.log.DebugContext(ctx, "access token refreshed", "rotated", out.Refresh != "")
	return nil
}

// expire clears both tokens and signals the session layer. Clearing never
// depends on the backend being reachable.
func (r *Refresher) expire(ctx context.Context) {
	if err := r.store.Clear(ctx); err != nil {
		r.log.ErrorContext(ctx, "failed to clear credentials", "error", err)
	}

	r.mu.RLock()
	fn := r.onTerminal
	r.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}
