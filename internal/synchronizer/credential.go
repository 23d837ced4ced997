package synchronizer

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errCredentialExpired = errors.New("credential expired")

// now is replaced in tests.
var now = time.Now

// Expired reports whether token is a JWT whose exp claim lies in the past.
// The signature is not verified. Opaque tokens are never considered expired.
func Expired(token string) bool {
	if token == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now())
}
