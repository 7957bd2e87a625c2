package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew refreshes slightly early so a token does not expire mid-flight.
const expirySkew = 10 * time.Second

// tokenExpired reports whether a JWT access token is past (or within
// expirySkew of) its exp claim. The signature is deliberately not verified:
// this client holds no backend key, and the check only decides whether to
// refresh proactively. Opaque or claimless tokens report false and are left
// for the backend to reject.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time.Add(-expirySkew))
}
