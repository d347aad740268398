package authsphere

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator checks a persisted access token before it is used, without
// tying callers to a specific verification strategy.
type TokenValidator interface {
	Validate(tokenString string) error
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) error

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) error {
	if f == nil {
		return nil
	}
	return f(tokenString)
}

// ExpiryValidator inspects the token's registered claims without verifying
// the signature. It catches the common case of a stale persisted token so the
// session can resolve to anonymous without a round trip; the backend remains
// the authority on everything else.
type ExpiryValidator struct {
	// Leeway widens the expiry window to absorb clock skew.
	Leeway time.Duration
	now    func() time.Time
}

// Validate implements TokenValidator.
func (v ExpiryValidator) Validate(tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return fmt.Errorf("token is malformed: %w", err)
	}

	if claims.ExpiresAt == nil {
		return nil
	}

	now := time.Now
	if v.now != nil {
		now = v.now
	}
	if now().After(claims.ExpiresAt.Time.Add(v.Leeway)) {
		return fmt.Errorf("token is expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return nil
}

// NewJWKSValidator verifies token signatures against the backend's JWK Set
// endpoint, refreshing keys in the background. Use it when the backend
// publishes its signing keys; otherwise ExpiryValidator is enough.
func NewJWKSValidator(jwksURL string, refreshInterval time.Duration) (TokenValidator, error) {
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval: refreshInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWK Set from %s: %w", jwksURL, err)
	}

	return TokenValidatorFunc(func(tokenString string) error {
		token, err := jwt.Parse(tokenString, jwks.Keyfunc)
		if err != nil {
			return err
		}
		if !token.Valid {
			return fmt.Errorf("token is malformed: signature did not verify")
		}
		return nil
	}), nil
}
