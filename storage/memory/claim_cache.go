// Package memorystore provides in-process implementations of the bearerkit
// cache contracts. It is the default backend; the redis package offers the
// same contracts for multi-replica deployments.
package memorystore

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/open-rails/bearerkit/claims"
)

const (
	// DefaultClaimTTL bounds how long a verified credential is trusted
	// without re-verification. Five minutes is a deliberate constant:
	// shrinking it erodes the latency win, growing it widens the window
	// during which a credential revoked at the IdP is still honored.
	DefaultClaimTTL = 5 * time.Minute

	// DefaultClaimCapacity caps the number of distinct credentials held
	// at once; least-recently-used entries are evicted beyond it.
	DefaultClaimCapacity = 1000
)

type claimEntry struct {
	set      claims.Set
	inserted time.Time
}

// ClaimCache is an in-memory claims.Cache backed by an LRU map with a
// fixed, non-sliding TTL. Reads never extend an entry's life.
type ClaimCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	lru    *lru.Cache[string, claimEntry]
	closed chan struct{}
}

// NewClaimCache creates a claim cache with the given TTL and capacity.
// Zero or negative arguments fall back to the defaults. A background
// goroutine sweeps expired entries once a minute; call Close to stop it.
func NewClaimCache(ttl time.Duration, capacity int) (*ClaimCache, error) {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	if capacity <= 0 {
		capacity = DefaultClaimCapacity
	}
	inner, err := lru.New[string, claimEntry](capacity)
	if err != nil {
		return nil, err
	}
	c := &ClaimCache{ttl: ttl, lru: inner, closed: make(chan struct{})}
	go c.sweepLoop()
	return c, nil
}

// Get implements claims.Cache.
func (c *ClaimCache) Get(_ context.Context, rawCredential string) (claims.Set, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(rawCredential)
	if !ok {
		return claims.Set{}, false, nil
	}
	if time.Since(e.inserted) >= c.ttl {
		c.lru.Remove(rawCredential)
		return claims.Set{}, false, nil
	}
	return e.set, true, nil
}

// Put implements claims.Cache. Re-inserting an existing credential resets
// its TTL (last write wins).
func (c *ClaimCache) Put(_ context.Context, rawCredential string, set claims.Set) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(rawCredential, claimEntry{set: set, inserted: time.Now()})
	return nil
}

// Len reports the number of entries currently held, expired or not.
func (c *ClaimCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *ClaimCache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.closed:
			return
		}
	}
}

func (c *ClaimCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && time.Since(e.inserted) >= c.ttl {
			c.lru.Remove(key)
		}
	}
}

// Close stops the background sweeper.
func (c *ClaimCache) Close() error {
	close(c.closed)
	return nil
}
