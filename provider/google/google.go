// Package google adapts the popup-based Google sign-in to the common
// external-identity shape. The popup runs in the host UI and hands the
// resulting token set to Exchange; this adapter verifies the ID token
// against Google's keys (or falls back to the UserInfo endpoint) and never
// holds a client secret.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/ecodeed/authkit/auth"
)

const DefaultIssuer = "https://accounts.google.com"

// TokenSet is the payload the completed popup produces. Either token is
// sufficient; the ID token is preferred because it can be verified offline.
type TokenSet struct {
	IDToken     string
	AccessToken string
}

type Config struct {
	ClientID string
	// IssuerURL overrides the discovery issuer, for tests.
	IssuerURL  string
	HTTPClient *http.Client
}

type Adapter struct {
	clientID string
	provider *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
}

var _ auth.IdentityProvider = (*Adapter)(nil)

// New runs OIDC discovery against the issuer once and keeps the verifier.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google: client ID is required")
	}

	issuer := cfg.IssuerURL
	if issuer == "" {
		issuer = DefaultIssuer
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	ctx = gooidc.ClientContext(ctx, httpClient)
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("google: discovery: %w", err)
	}

	return &Adapter{
		clientID: cfg.ClientID,
		provider: provider,
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (a *Adapter) Name() string { return auth.ProviderGoogle }

type profileClaims struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Name       string `json:"name"`
	Picture    string `json:"picture"`
}

// Exchange normalizes a popup result. An empty payload means the popup was
// blocked or produced nothing and maps to ErrUnavailable; a cancelled
// context (user navigated away mid-popup) maps to ErrCancelled.
func (a *Adapter) Exchange(ctx context.Context, payload any) (auth.ExternalIdentity, error) {
	var ts TokenSet
	switch v := payload.(type) {
	case TokenSet:
		ts = v
	case *TokenSet:
		if v != nil {
			ts = *v
		}
	default:
		return auth.ExternalIdentity{}, fmt.Errorf("google: unexpected payload type %T", payload)
	}

	if err := ctx.Err(); err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("google: %w", auth.ErrCancelled)
	}
	if ts.IDToken == "" && ts.AccessToken == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("google: popup produced no tokens: %w", auth.ErrUnavailable)
	}

	var claims profileClaims
	if ts.IDToken != "" {
		idToken, err := a.verifier.Verify(ctx, ts.IDToken)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return auth.ExternalIdentity{}, fmt.Errorf("google: %w", auth.ErrCancelled)
			}
			return auth.ExternalIdentity{}, fmt.Errorf("google: verify id token: %w", err)
		}
		if err := idToken.Claims(&claims); err != nil {
			return auth.ExternalIdentity{}, fmt.Errorf("google: decode claims: %w", err)
		}
	} else {
		info, err := a.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: ts.AccessToken}))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return auth.ExternalIdentity{}, fmt.Errorf("google: %w", auth.ErrCancelled)
			}
			return auth.ExternalIdentity{}, fmt.Errorf("google: fetch userinfo: %w", err)
		}
		if err := info.Claims(&claims); err != nil {
			return auth.ExternalIdentity{}, fmt.Errorf("google: decode userinfo: %w", err)
		}
	}

	if claims.Email == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("google: profile carried no email: %w", auth.ErrMalformedResponse)
	}

	given, family := claims.GivenName, claims.FamilyName
	if given == "" && family == "" && claims.Name != "" {
		given, family = splitName(claims.Name)
	}

	return auth.ExternalIdentity{
		ProviderID: claims.Sub,
		Email:      claims.Email,
		GivenName:  given,
		FamilyName: family,
		AvatarURL:  claims.Picture,
	}, nil
}

func splitName(name string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(name), " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
