package verifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/open-rails/bearerkit/keyring"
	idptest "github.com/open-rails/bearerkit/testing"
)

func newTokenVerifier(t *testing.T, idp *idptest.FakeIdP) *Token {
	t.Helper()
	ring, err := keyring.New(keyring.WithHTTPClient(idp.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return NewToken(ring)
}

func TestVerifyValidToken(t *testing.T) {
	idp := idptest.NewFakeIdP()
	defer idp.Close()
	v := newTokenVerifier(t, idp)

	tok := idp.SignTokenWithClaims("idp|abc", "a@x.com", map[string]any{
		"name": "Ada",
		"aud":  "https://api.example.com",
	})
	set, err := v.Verify(context.Background(), tok, idp.Domain())
	if err != nil {
		t.Fatal(err)
	}
	if set.Subject != "idp|abc" {
		t.Errorf("subject = %q", set.Subject)
	}
	if set.Email != "a@x.com" || set.Name != "Ada" {
		t.Errorf("profile claims = %q %q", set.Email, set.Name)
	}
	if set.Issuer != idp.Issuer() {
		t.Errorf("issuer = %q", set.Issuer)
	}
	if len(set.Audience) != 1 || set.Audience[0] != "https://api.example.com" {
		t.Errorf("audience = %v", set.Audience)
	}
	if set.Expiry == 0 || set.ExpiresAt().Before(time.Now()) {
		t.Errorf("expiry = %d", set.Expiry)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	idp := idptest.NewFakeIdP()
	defer idp.Close()
	v := newTokenVerifier(t, idp)

	_, err := v.Verify(context.Background(), idp.SignExpiredToken("idp|abc", ""), idp.Domain())
	if !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyMissingExpiry(t *testing.T) {
	idp := idptest.NewFakeIdP()
	defer idp.Close()
	v := newTokenVerifier(t, idp)

	tok := idp.SignTokenWithClaims("idp|abc", "", map[string]any{"exp": nil})
	if _, err := v.Verify(context.Background(), tok, idp.Domain()); err == nil {
		t.Error("token without exp should not verify")
	}
}

func TestVerifyIssuerMismatch(t *testing.T) {
	idp := idptest.NewFakeIdP()
	defer idp.Close()
	v := newTokenVerifier(t, idp)

	tok := idp.SignTokenWithClaims("idp|abc", "", map[string]any{
		"iss": "https://elsewhere.example.com/",
	})
	_, err := v.Verify(context.Background(), tok, idp.Domain())
	if !errors.Is(err, ErrIssuer) {
		t.Errorf("expected ErrIssuer, got %v", err)
	}
}

func TestVerifyForeignSignature(t *testing.T) {
	idp := idptest.NewFakeIdP()
	defer idp.Close()
	other := idptest.NewFakeIdP()
	defer other.Close()
	v := newTokenVerifier(t, idp)

	// Signed by a different tenant's key but claiming our issuer.
	tok := other.SignTokenWithClaims("idp|abc", "", map[string]any{
		"iss": idp.Issuer(),
	})
	_, err := v.Verify(context.Background(), tok, idp.Domain())
	if !errors.Is(err, ErrSignature) {
		t.Errorf("expected ErrSignature, got %v", err)
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	idp := idptest.NewFakeIdP()
	defer idp.Close()
	v := newTokenVerifier(t, idp)

	_, err := v.Verify(context.Background(), "not-a-jwt-at-all", idp.Domain())
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestVerifyEmptySubject(t *testing.T) {
	idp := idptest.NewFakeIdP()
	defer idp.Close()
	v := newTokenVerifier(t, idp)

	tok := idp.SignTokenWithClaims("", "", nil)
	_, err := v.Verify(context.Background(), tok, idp.Domain())
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for empty sub, got %v", err)
	}
}
