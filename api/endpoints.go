package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ecodeed/authkit/credstore"
)

// Backend routes, mirroring the users app URL configuration.
const (
	loginPath         = "api/auth/login/"
	registerPath      = "api/auth/register/"
	logoutPath        = "api/auth/logout/"
	profilePath       = "api/auth/profile/"
	profileUpdatePath = "api/auth/profile/update/"
	usersPath         = "api/auth/users/"
	socialPathPrefix  = "api/auth/social/"
	refreshPath       = "api/auth/token/refresh/"

	twitterLoginPath    = "api/auth/social/twitter/login/"
	twitterCallbackPath = "api/auth/social/twitter/callback/"
)

// AuthPayload is the backend's authentication response: the raw user record
// plus a fresh token pair. User stays raw JSON here; normalization into the
// canonical shape happens in the auth package.
type AuthPayload struct {
	User    json.RawMessage `json:"user"`
	Access  string          `json:"access"`
	Refresh string          `json:"refresh"`
	Created bool            `json:"created,omitempty"`
}

// Credentials extracts the token pair.
func (p *AuthPayload) Credentials() credstore.Credentials {
	return credstore.Credentials{
		AccessToken:  p.Access,
		RefreshToken: p.Refresh,
	}
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthPayload, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthPayload
	if err := c.Do(ctx, http.MethodPost, loginPath, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	UserType        string `json:"user_type,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Register creates an account and returns the signed-in payload.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*AuthPayload, error) {
	var out AuthPayload
	if err := c.Do(ctx, http.MethodPost, registerPath, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SocialExchange posts a normalized external identity to the per-provider
// exchange endpoint and returns the backend-assigned user plus tokens.
func (c *Client) SocialExchange(ctx context.Context, provider string, body any) (*AuthPayload, error) {
	var out AuthPayload
	if err := c.Do(ctx, http.MethodPost, socialPathPrefix+provider+"/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TwitterAuthURL asks the backend to start the redirect flow. The backend
// builds the authorization URL and keeps the PKCE verifier; no code secret
// ever reaches this client.
func (c *Client) TwitterAuthURL(ctx context.Context) (authURL, state string, err error) {
	var out struct {
		AuthURL string `json:"auth_url"`
		State   string `json:"state"`
	}
	if err := c.Do(ctx, http.MethodGet, twitterLoginPath, nil, &out); err != nil {
		return "", "", err
	}
	if out.AuthURL == "" {
		return "", "", newError(ErrMalformedResponse, 0, "backend sent no authorization URL")
	}
	return out.AuthURL, out.State, nil
}

// TwitterCallback forwards the code/state pair returned by the provider for
// the server-side exchange.
func (c *Client) TwitterCallback(ctx context.Context, code, state string) (*AuthPayload, error) {
	body := map[string]string{"code": code, "state": state}
	var out AuthPayload
	if err := c.Do(ctx, http.MethodPost, twitterCallbackPath, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the current user's raw profile record.
func (c *Client) Profile(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, http.MethodGet, profilePath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProfileWithToken fetches the profile with an explicit access token instead
// of the stored one. Used while completing a redirect callback, where the
// tokens must not be persisted until the profile proves normalizable. No
// refresh, no retry.
func (c *Client) ProfileWithToken(ctx context.Context, accessToken string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.send(ctx, http.MethodGet, profilePath, nil, &out, accessToken); err != nil {
		return nil, err
	}
	return out, nil
}

// ProfileUpdate carries a partial profile edit; nil fields are left alone.
type ProfileUpdate struct {
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
	Bio            *string `json:"bio,omitempty"`
	PhoneNumber    *string `json:"phone_number,omitempty"`
}

// UpdateProfile patches the profile and returns the updated raw record.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileUpdate) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, http.MethodPatch, profileUpdatePath, in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAccount removes the user record.
func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, usersPath+id+"/", nil, nil)
}

// NotifySignOut hands the refresh token to the backend for blacklisting.
// Callers treat failure as non-blocking: local sign-out proceeds regardless.
func (c *Client) NotifySignOut(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refresh": refreshToken}
	return c.Do(ctx, http.MethodPost, logoutPath, body, nil)
}
