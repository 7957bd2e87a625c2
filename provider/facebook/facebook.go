// Package facebook adapts the SDK-mediated Facebook login. The third-party
// script is injected at runtime by the host UI; the adapter only receives
// the SDK's login result and fetches the profile from the Graph API, so it
// tolerates the script never having loaded (ErrUnavailable, not a panic).
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ecodeed/authkit/auth"
)

const DefaultGraphURL = "https://graph.facebook.com/v19.0"

// RequiredScope is the minimum permission set the SDK must request:
// email plus public profile, nothing more.
const RequiredScope = "email,public_profile"

// SDKResult is the payload of a completed SDK login.
type SDKResult struct {
	AccessToken string
	UserID      string
}

type Config struct {
	// GraphURL overrides the Graph API base, for tests.
	GraphURL   string
	HTTPClient *http.Client
}

type Adapter struct {
	graphURL string
	http     *http.Client
}

var _ auth.IdentityProvider = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	graphURL := cfg.GraphURL
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{graphURL: graphURL, http: httpClient}
}

func (a *Adapter) Name() string { return auth.ProviderFacebook }

type graphUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Picture   struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
	Error *graphError `json:"error"`
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// Exchange fetches the profile for the SDK's access token. Facebook may
// withhold the email; in that case a placeholder address derived from the
// Facebook ID is synthesized, matching what the backend expects.
func (a *Adapter) Exchange(ctx context.Context, payload any) (auth.ExternalIdentity, error) {
	var res SDKResult
	switch v := payload.(type) {
	case SDKResult:
		res = v
	case *SDKResult:
		if v != nil {
			res = *v
		}
	default:
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: unexpected payload type %T", payload)
	}

	if err := ctx.Err(); err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: %w", auth.ErrCancelled)
	}
	if res.AccessToken == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: sdk produced no access token: %w", auth.ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.graphURL+"/me?fields=id,email,first_name,last_name,picture.width(320)", nil)
	if err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)

	resp, err := a.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return auth.ExternalIdentity{}, fmt.Errorf("facebook: %w", auth.ErrCancelled)
		}
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: fetch profile: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: read profile: %w", err)
	}

	var gu graphUser
	if err := json.Unmarshal(data, &gu); err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: decode profile: %w", auth.ErrMalformedResponse)
	}
	if gu.Error != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: graph error %d: %s", gu.Error.Code, gu.Error.Message)
	}
	if gu.ID == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("facebook: profile carried no id: %w", auth.ErrMalformedResponse)
	}

	email := gu.Email
	if email == "" {
		email = fmt.Sprintf("fb_%s@facebook.placeholder.com", gu.ID)
	}

	return auth.ExternalIdentity{
		ProviderID: gu.ID,
		Email:      email,
		GivenName:  gu.FirstName,
		FamilyName: gu.LastName,
		AvatarURL:  gu.Picture.Data.URL,
	}, nil
}
