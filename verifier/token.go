// Package verifier validates bearer credentials, either locally against the
// IdP's published signing keys or remotely through the IdP's userinfo
// endpoint.
package verifier

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/open-rails/bearerkit/claims"
)

var (
	// ErrMalformed marks credentials that do not parse as a JWT at all.
	ErrMalformed = errors.New("verifier: malformed token")
	// ErrSignature marks a JWT whose signature does not verify.
	ErrSignature = errors.New("verifier: invalid signature")
	// ErrExpired marks a JWT whose exp claim is absent or in the past.
	ErrExpired = errors.New("verifier: token expired")
	// ErrIssuer marks a JWT issued by someone other than the configured
	// domain.
	ErrIssuer = errors.New("verifier: issuer mismatch")
)

// KeySource supplies the verification key for a domain. *keyring.KeyRing
// satisfies it.
type KeySource interface {
	Keys(ctx context.Context, domain string) (*rsa.PublicKey, error)
}

// Token verifies self-contained signed credentials. It accepts RS256 only,
// requires an unexpired exp claim, and requires the issuer to be exactly
// "https://{domain}/". Audience is deliberately not checked: the same
// credential is accepted across the APIs that share the IdP tenant.
//
// Token is pure verification; it never caches results.
type Token struct {
	keys KeySource
}

// NewToken creates a Token verifier over the given key source.
func NewToken(keys KeySource) *Token {
	return &Token{keys: keys}
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Verify checks the credential and extracts its claims. Any failure,
// whatever its kind, means the credential cannot be trusted on this path;
// callers fall back to introspection rather than inspecting the kind.
func (v *Token) Verify(ctx context.Context, token, domain string) (claims.Set, error) {
	pub, err := v.keys.Keys(ctx, domain)
	if err != nil {
		return claims.Set{}, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer("https://"+domain+"/"),
		jwt.WithExpirationRequired(),
	)
	var tc tokenClaims
	_, err = parser.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return pub, nil
	})
	if err != nil {
		return claims.Set{}, wrapJWTError(err)
	}
	if tc.Subject == "" {
		return claims.Set{}, fmt.Errorf("%w: empty sub claim", ErrMalformed)
	}

	set := claims.Set{
		Subject:  tc.Subject,
		Email:    tc.Email,
		Name:     tc.Name,
		Issuer:   tc.Issuer,
		Audience: tc.Audience,
	}
	if tc.ExpiresAt != nil {
		set.Expiry = tc.ExpiresAt.Unix()
	}
	return set, nil
}

func wrapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrIssuer, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
