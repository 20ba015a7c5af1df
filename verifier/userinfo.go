package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/open-rails/bearerkit/claims"
)

var (
	// ErrIntrospectionRejected marks a non-success status from the
	// userinfo endpoint: the IdP does not recognize the credential.
	ErrIntrospectionRejected = errors.New("verifier: introspection rejected token")
	// ErrIntrospectionFormat marks a success response whose body is not
	// a usable identity document.
	ErrIntrospectionFormat = errors.New("verifier: malformed introspection response")
)

// Introspector verifies opaque credentials by delegating trust to the IdP's
// userinfo endpoint. It is also the fallback for JWT-shaped credentials that
// fail local verification (wrong tenant keys, clock skew at the edge).
type Introspector struct {
	base *http.Client
}

// IntrospectorOption configures an Introspector.
type IntrospectorOption func(*Introspector)

// WithIntrospectionClient overrides the HTTP client underlying the
// introspection call.
func WithIntrospectionClient(c *http.Client) IntrospectorOption {
	return func(i *Introspector) { i.base = c }
}

// NewIntrospector creates an Introspector.
func NewIntrospector(opts ...IntrospectorOption) *Introspector {
	i := &Introspector{}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// UserInfoURI returns the identity-introspection endpoint for an IdP domain.
func UserInfoURI(domain string) string {
	return "https://" + domain + "/userinfo"
}

type userInfoResponse struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Introspect presents the credential to the IdP as a bearer token and maps
// the response to a claim set. Issuer, audience, and expiry are left absent
// because the endpoint does not report them.
func (i *Introspector) Introspect(ctx context.Context, token, domain string) (claims.Set, error) {
	if i.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, i.base)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, UserInfoURI(domain), nil)
	if err != nil {
		return claims.Set{}, fmt.Errorf("%w: %v", ErrIntrospectionRejected, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return claims.Set{}, fmt.Errorf("%w: %v", ErrIntrospectionRejected, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return claims.Set{}, fmt.Errorf("%w: status %s", ErrIntrospectionRejected, resp.Status)
	}

	var ui userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		return claims.Set{}, fmt.Errorf("%w: %v", ErrIntrospectionFormat, err)
	}
	if ui.Sub == "" {
		return claims.Set{}, fmt.Errorf("%w: empty sub", ErrIntrospectionFormat)
	}
	return claims.Set{Subject: ui.Sub, Email: ui.Email, Name: ui.Name}, nil
}
