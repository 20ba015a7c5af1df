// Package claims defines the verified identity facts extracted from a
// bearer credential, plus the cache contract used to memoize them.
package claims

import (
	"context"
	"time"
)

// Set holds the verified claims for one caller. Subject is the only
// required field and the sole provisioning key; everything else is
// best-effort. A Set is a value type and is never mutated after
// construction.
type Set struct {
	// Subject is the IdP-scoped stable identifier (e.g. "auth0|abc123").
	Subject string `json:"sub"`
	// Email as asserted by the IdP; may be empty.
	Email string `json:"email,omitempty"`
	// Name is a display name; may be empty.
	Name string `json:"name,omitempty"`
	// Issuer is set only on the signed-token path.
	Issuer string `json:"iss,omitempty"`
	// Audience is set only on the signed-token path.
	Audience []string `json:"aud,omitempty"`
	// Expiry is the token's exp claim in epoch seconds; zero means absent.
	Expiry int64 `json:"exp,omitempty"`
}

// ExpiresAt returns the expiry as a time, or the zero time when absent.
func (s Set) ExpiresAt() time.Time {
	if s.Expiry == 0 {
		return time.Time{}
	}
	return time.Unix(s.Expiry, 0)
}

// Cache memoizes verified claims keyed by the raw credential string so a
// credential seen twice inside the TTL is verified at most once. Entries
// expire after a fixed, non-sliding TTL; a revoked credential therefore
// stays trusted locally until its entry lapses, which is an accepted
// availability trade-off. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached claims for the raw credential, if present
	// and unexpired.
	Get(ctx context.Context, rawCredential string) (Set, bool, error)
	// Put stores claims under the raw credential. Callers treat Put
	// failures as best-effort; a claim that fails to cache is simply
	// re-verified next time.
	Put(ctx context.Context, rawCredential string, set Set) error
}
