// Package keyring fetches and caches the signing-key sets published by an
// identity provider.
package keyring

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	// DefaultTTL is how long a fetched key-set document is reused before
	// it is fetched again.
	DefaultTTL = time.Hour

	// DefaultCapacity bounds the number of distinct key-set URIs cached;
	// one entry per configured IdP domain is expected.
	DefaultCapacity = 10
)

var (
	// ErrFetch marks network or HTTP-status failures against the
	// key-set endpoint.
	ErrFetch = errors.New("keyring: key set fetch failed")
	// ErrFormat marks a response body that is not a usable key set.
	ErrFormat = errors.New("keyring: malformed key set")
)

type docEntry struct {
	body     []byte
	inserted time.Time
}

// KeyRing resolves the current RSA signing key for an IdP domain. The raw
// key-set document is cached per URI so a refetch is paid at most once per
// TTL; parsing is paid per use, which keeps the cache oblivious to the
// document's schema.
//
// Key selection takes the first key in the published set unconditionally,
// with no kid matching against the token header. This breaks if the IdP
// ever serves multiple concurrent signing keys; it is kept for
// compatibility with the deployments this package fronts.
type KeyRing struct {
	client *http.Client
	ttl    time.Duration

	mu   sync.Mutex
	docs *lru.Cache[string, docEntry]
}

// Option configures a KeyRing.
type Option func(*KeyRing)

// WithHTTPClient overrides the HTTP client used to fetch key sets.
func WithHTTPClient(c *http.Client) Option {
	return func(k *KeyRing) { k.client = c }
}

// WithTTL overrides how long fetched documents are reused.
func WithTTL(ttl time.Duration) Option {
	return func(k *KeyRing) {
		if ttl > 0 {
			k.ttl = ttl
		}
	}
}

// New creates a KeyRing.
func New(opts ...Option) (*KeyRing, error) {
	docs, err := lru.New[string, docEntry](DefaultCapacity)
	if err != nil {
		return nil, err
	}
	k := &KeyRing{
		client: http.DefaultClient,
		ttl:    DefaultTTL,
		docs:   docs,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// KeySetURI returns the well-known key-set endpoint for an IdP domain.
func KeySetURI(domain string) string {
	return "https://" + domain + "/.well-known/jwks.json"
}

// Keys returns the RSA public key to verify signatures from the given
// domain. The document is served from cache when present and unexpired;
// otherwise it is fetched and cached on success.
func (k *KeyRing) Keys(ctx context.Context, domain string) (*rsa.PublicKey, error) {
	uri := KeySetURI(domain)

	body, ok := k.cachedDoc(uri)
	if !ok {
		var err error
		body, err = k.fetch(ctx, uri)
		if err != nil {
			return nil, err
		}
		k.storeDoc(uri, body)
	}
	return firstRSAKey(body)
}

func (k *KeyRing) cachedDoc(uri string) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.docs.Get(uri)
	if !ok {
		return nil, false
	}
	if time.Since(e.inserted) >= k.ttl {
		k.docs.Remove(uri)
		return nil, false
	}
	return e.body, true
}

func (k *KeyRing) storeDoc(uri string, body []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.docs.Add(uri, docEntry{body: body, inserted: time.Now()})
}

func (k *KeyRing) fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetch, uri, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return body, nil
}

func firstRSAKey(body []byte) (*rsa.PublicKey, error) {
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: empty key set", ErrFormat)
	}
	key, _ := set.Key(0)
	var pub rsa.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, fmt.Errorf("%w: first key is not an RSA public key: %v", ErrFormat, err)
	}
	return &pub, nil
}
