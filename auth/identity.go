package auth

// Registered provider names. Adapters report one of these from Name() and
// the backend exposes a matching exchange endpoint per provider.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderTwitter  = "twitter"
)

// ExternalIdentity is the normalized output of a provider adapter. It is
// transient: consumed immediately by the backend exchange call and
// discarded, never persisted. Role, privilege and the canonical user ID are
// backend-assigned and only learned after the exchange.
type ExternalIdentity struct {
	// ProviderID is the provider's stable identifier for this user,
	// always a string even when the provider uses numeric IDs.
	ProviderID string

	// Email is required for every adapter; adapters for providers that may
	// omit it synthesize a placeholder before returning.
	Email string

	GivenName  string
	FamilyName string
	AvatarURL  string
}

// exchangeBody shapes an identity into the per-provider exchange request.
// The social ID field is named after the provider (google_id, facebook_id,
// twitter_id), matching the backend's user model.
func exchangeBody(provider string, id ExternalIdentity) map[string]string {
	body := map[string]string{
		"email":      id.Email,
		"first_name": id.GivenName,
		"last_name":  id.FamilyName,
	}
	if id.AvatarURL != "" {
		body["profile_picture"] = id.AvatarURL
	}
	if id.ProviderID != "" {
		body[provider+"_id"] = id.ProviderID
	}
	return body
}
