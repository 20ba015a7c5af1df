// Package testing provides a fake identity provider for exercising
// bearerkit without a real IdP tenant. It runs a TLS test server exposing
// the two endpoints the resolver depends on, /.well-known/jwks.json and
// /userinfo, and can mint signed tokens or register opaque ones.
//
// Example:
//
//	idp := testing.NewFakeIdP()
//	defer idp.Close()
//
//	ring, _ := keyring.New(keyring.WithHTTPClient(idp.Client()))
//	tok := idp.SignToken("auth0|abc", "a@x.com")
//	set, err := verifier.NewToken(ring).Verify(ctx, tok, idp.Domain())
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	jwtkit "github.com/open-rails/bearerkit/jwt"
)

type opaqueGrant struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// FakeIdP is an in-process IdP double. It serves its JWKS over TLS and
// answers userinfo introspection for tokens registered via GrantOpaque.
// Counters expose how often each endpoint was hit so tests can assert
// cache behavior.
type FakeIdP struct {
	server *httptest.Server
	signer *jwtkit.RSASigner

	mu            sync.Mutex
	opaque        map[string]opaqueGrant
	jwksFetches   int
	userinfoCalls int
}

// NewFakeIdP starts a fake IdP. Call Close when done.
func NewFakeIdP() *FakeIdP {
	signer, err := jwtkit.NewRSASigner(2048, "fake-idp-1")
	if err != nil {
		panic("bearerkit/testing: generate RSA key: " + err.Error())
	}
	f := &FakeIdP{
		signer: signer,
		opaque: make(map[string]opaqueGrant),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", f.handleJWKS)
	mux.HandleFunc("/userinfo", f.handleUserInfo)
	f.server = httptest.NewTLSServer(mux)
	return f
}

// Domain returns the host:port of the fake IdP, suitable as the resolver's
// configured IdP domain.
func (f *FakeIdP) Domain() string {
	return strings.TrimPrefix(f.server.URL, "https://")
}

// Issuer returns the issuer string tokens are minted with.
func (f *FakeIdP) Issuer() string { return "https://" + f.Domain() + "/" }

// Client returns an HTTP client that trusts the fake IdP's certificate.
// Hand it to keyring.WithHTTPClient and verifier.WithIntrospectionClient.
func (f *FakeIdP) Client() *http.Client { return f.server.Client() }

// Close shuts the server down.
func (f *FakeIdP) Close() { f.server.Close() }

// SignToken mints a valid signed token for the subject, expiring in an
// hour.
func (f *FakeIdP) SignToken(subject, email string) string {
	return f.SignTokenWithClaims(subject, email, nil)
}

// SignTokenWithClaims mints a signed token with extra claims merged over
// the standard ones, so tests can override iss, exp, or anything else.
func (f *FakeIdP) SignTokenWithClaims(subject, email string, extra map[string]any) string {
	now := time.Now()
	mc := jwt.MapClaims{
		"sub": subject,
		"iss": f.Issuer(),
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if email != "" {
		mc["email"] = email
	}
	for k, v := range extra {
		mc[k] = v
	}
	token, err := f.signer.Sign(mc)
	if err != nil {
		panic("bearerkit/testing: sign token: " + err.Error())
	}
	return token
}

// SignExpiredToken mints a token whose exp is an hour in the past.
func (f *FakeIdP) SignExpiredToken(subject, email string) string {
	return f.SignTokenWithClaims(subject, email, map[string]any{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
}

// GrantOpaque registers an opaque token the userinfo endpoint will accept.
func (f *FakeIdP) GrantOpaque(token, subject, email, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opaque[token] = opaqueGrant{Sub: subject, Email: email, Name: name}
}

// JWKSFetches reports how many times the key set was downloaded.
func (f *FakeIdP) JWKSFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jwksFetches
}

// UserInfoCalls reports how many introspection requests arrived.
func (f *FakeIdP) UserInfoCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userinfoCalls
}

func (f *FakeIdP) handleJWKS(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.jwksFetches++
	f.mu.Unlock()
	jwk := jwtkit.PublicJWK(f.signer.PublicKey(), f.signer.KID(), f.signer.Algorithm())
	jwtkit.ServeJWKS(w, r, jwtkit.JWKS{Keys: []jwtkit.JWK{jwk}})
}

func (f *FakeIdP) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.userinfoCalls++
	f.mu.Unlock()

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	token := strings.TrimPrefix(auth, "Bearer ")

	f.mu.Lock()
	grant, ok := f.opaque[token]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(grant)
}
