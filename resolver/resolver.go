// Package resolver turns an inbound Authorization header into a persisted
// local identity.
//
// Resolution runs a fixed sequence per request: parse the header, consult
// the claim cache, verify locally as a signed token, fall back to IdP
// introspection, cache the verified claims, then provision the user. The
// signed-first, opaque-second order is a hard contract; there is no
// verifier registry.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/bearerkit/claims"
	"github.com/open-rails/bearerkit/identity"
)

const bearerPrefix = "Bearer "

var (
	// ErrNoCredential means the Authorization header was absent.
	ErrNoCredential = errors.New("resolver: missing credential")
	// ErrMalformedHeader means the header carried bytes outside
	// printable ASCII.
	ErrMalformedHeader = errors.New("resolver: malformed authorization header")
	// ErrUnsupportedScheme means the header does not use the Bearer
	// scheme.
	ErrUnsupportedScheme = errors.New("resolver: unsupported authorization scheme")
	// ErrCredentialRejected means both verification paths refused the
	// credential.
	ErrCredentialRejected = errors.New("resolver: credential rejected")
)

// TokenVerifier is the local, signature-based verification path.
type TokenVerifier interface {
	Verify(ctx context.Context, token, domain string) (claims.Set, error)
}

// OpaqueVerifier is the remote, introspection-based verification path.
type OpaqueVerifier interface {
	Introspect(ctx context.Context, token, domain string) (claims.Set, error)
}

// Provisioner maps verified claims to a persisted local user.
// *identity.Store satisfies it.
type Provisioner interface {
	Provision(ctx context.Context, set claims.Set) (identity.User, error)
}

// Resolver orchestrates credential resolution. Construct one per process
// and share it across requests; the cache and key ring behind it are safe
// for concurrent use.
type Resolver struct {
	cfg    Config
	token  TokenVerifier
	opaque OpaqueVerifier
	cache  claims.Cache
	prov   Provisioner
	log    logrus.FieldLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger overrides the logger used for per-request failure detail.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// New creates a Resolver. cache may be nil to disable claim caching.
func New(cfg Config, token TokenVerifier, opaque OpaqueVerifier, cache claims.Cache, prov Provisioner, opts ...Option) *Resolver {
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	r := &Resolver{
		cfg:    cfg,
		token:  token,
		opaque: opaque,
		cache:  cache,
		prov:   prov,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve verifies the Authorization header value and returns the local
// user it maps to. Every failure, whether header shape, verification,
// or storage, comes back as an error the caller should treat uniformly
// as unauthorized; the specific kind is logged here, not returned, so
// callers cannot leak backend state to clients.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (identity.User, error) {
	token, err := bearerToken(authorization)
	if err != nil {
		r.log.WithField("kind", "header").WithError(err).Debug("credential not extractable")
		return identity.User{}, err
	}

	if r.cache != nil {
		set, ok, err := r.cache.Get(ctx, token)
		if err != nil {
			r.log.WithField("kind", "cache").WithError(err).Warn("claim cache read failed")
		} else if ok {
			return r.provision(ctx, set)
		}
	}

	set, err := r.token.Verify(ctx, token, r.cfg.Domain)
	if err != nil {
		// Any local-verification failure, not just expiry, routes to
		// introspection: the credential may be opaque, or signed by a
		// tenant this process does not hold keys for.
		r.log.WithField("kind", "jwt").WithError(err).Debug("local verification failed, trying introspection")
		set, err = r.opaque.Introspect(ctx, token, r.cfg.Domain)
		if err != nil {
			r.log.WithField("kind", "introspection").WithError(err).Info("credential rejected")
			return identity.User{}, fmt.Errorf("%w: %v", ErrCredentialRejected, err)
		}
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, token, set); err != nil {
			// Best effort: an uncached claim is re-verified next time.
			r.log.WithField("kind", "cache").WithError(err).Warn("claim cache write failed")
		}
	}

	return r.provision(ctx, set)
}

func (r *Resolver) provision(ctx context.Context, set claims.Set) (identity.User, error) {
	u, err := r.prov.Provision(ctx, set)
	if err != nil {
		r.log.WithField("kind", "storage").WithField("subject", set.Subject).WithError(err).Error("provisioning failed")
		return identity.User{}, err
	}
	return u, nil
}

func bearerToken(authorization string) (string, error) {
	if authorization == "" {
		return "", ErrNoCredential
	}
	for i := 0; i < len(authorization); i++ {
		if authorization[i] < 0x20 || authorization[i] > 0x7e {
			return "", ErrMalformedHeader
		}
	}
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return "", ErrUnsupportedScheme
	}
	return authorization[len(bearerPrefix):], nil
}
