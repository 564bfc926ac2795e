package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessExpiry reads the exp claim of a JWT access token without verifying
// its signature. The client never trusts these claims for authorization;
// they only drive proactive refresh and expiry reporting. ok is false for
// opaque tokens and JWTs without exp.
func AccessExpiry(token string) (expiresAt time.Time, ok bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExpiresWithin reports whether token is a JWT whose exp falls before
// now+skew. Opaque tokens never report as expiring.
func ExpiresWithin(token string, now time.Time, skew time.Duration) bool {
	exp, ok := AccessExpiry(token)
	if !ok {
		return false
	}
	return !now.Add(skew).Before(exp)
}
