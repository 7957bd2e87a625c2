package auth

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Role is the backend-assigned authorization role.
type Role string

const (
	RoleReader  Role = "READER"
	RoleStudent Role = "STUDENT"
	RoleMentor  Role = "MENTOR"
	RoleAdmin   Role = "ADMIN"
)

// User is the canonical identity record. Every screen works against this
// shape regardless of which provider or backend field names produced it.
type User struct {
	ID          string
	Email       string
	GivenName   string
	FamilyName  string
	DisplayName string
	AvatarURL   string
	Bio         string
	Phone       string
	Role        Role
	// IsPrivileged is computed from every privilege signal the backend may
	// send, never trusted verbatim from a single field.
	IsPrivileged bool
	CreatedAt    time.Time
}

// NormalizeRaw decodes a raw backend user record and normalizes it.
func NormalizeRaw(raw json.RawMessage) *User {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return Normalize(m)
}

// Normalize maps an arbitrarily-cased backend user record into a User.
// It returns nil when id or email is missing: callers treat nil as a
// malformed authentication response, distinct from a rejected one. Unknown
// fields are dropped silently.
func Normalize(raw map[string]any) *User {
	id := stringField(raw, "id", "pk", "user_id", "userId")
	email := strings.TrimSpace(stringField(raw, "email"))
	if id == "" || email == "" {
		return nil
	}

	u := &User{
		ID:         id,
		Email:      email,
		GivenName:  stringField(raw, "first_name", "firstName", "given_name", "givenName"),
		FamilyName: stringField(raw, "last_name", "lastName", "family_name", "familyName"),
		AvatarURL:  stringField(raw, "profile_picture", "profilePicture", "avatar_url", "avatarUrl", "photo_url", "photoUrl"),
		Bio:        stringField(raw, "bio"),
		Phone:      stringField(raw, "phone_number", "phoneNumber", "phone"),
		Role:       parseRole(stringField(raw, "user_type", "userType", "role")),
		CreatedAt:  timeField(raw, "date_joined", "dateJoined", "created_at", "createdAt"),
	}

	// OR every known privilege signal: backends drift between an explicit
	// admin role and staff/superuser flags, and under-granting locks real
	// admins out of their own console.
	u.IsPrivileged = u.Role == RoleAdmin ||
		boolField(raw, "is_staff", "isStaff") ||
		boolField(raw, "is_superuser", "isSuperuser")

	u.DisplayName = displayName(u.GivenName, u.FamilyName, u.Email)

	return u
}

func displayName(given, family, email string) string {
	name := strings.TrimSpace(strings.TrimSpace(given) + " " + strings.TrimSpace(family))
	if name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func parseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent
	case RoleMentor:
		return RoleMentor
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleReader
	}
}

// stringField returns the first present key, stringifying JSON numbers so a
// numeric id survives normalization.
func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func boolField(raw map[string]any, keys ...string) bool {
	for _, key := range keys {
		if v, ok := raw[key].(bool); ok && v {
			return true
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func timeField(raw map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		s, ok := raw[key].(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
