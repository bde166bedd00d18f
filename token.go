package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// bearerLeeway tolerates small clock drift between the backend that minted
// the fallback token and the machine checking it.
const bearerLeeway = 30 * time.Second

// CheckBearerFreshness inspects the cached fallback bearer token before it is
// used to paint optimistic state. The client holds no signing key, so the
// signature is left to the backend; only the temporal claims are enforced
// locally. A stale token must never resurrect a dead session's UI.
func CheckBearerFreshness(token string, now time.Time) error {
	if token == "" {
		return ErrStaleBearerToken
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ErrStaleBearerToken.WithMetadata(map[string]any{
			"parse_error": err.Error(),
		})
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if now.After(exp.Time.Add(bearerLeeway)) {
			return ErrStaleBearerToken
		}
	}

	if nbf, err := claims.GetNotBefore(); err == nil && nbf != nil {
		if now.Add(bearerLeeway).Before(nbf.Time) {
			return ErrStaleBearerToken
		}
	}

	return nil
}
