// Package redisstore provides redis-backed implementations of the bearerkit
// cache contracts for deployments where replicas should share verification
// work.
package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/open-rails/bearerkit/claims"
)

// ClaimCache is a claims.Cache on redis. Raw credentials are hashed before
// use as keys so bearer tokens never appear in redis keyspace listings.
// Expiry is enforced by redis key TTL, so entries are pure-TTL here too.
type ClaimCache struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

// NewClaimCache creates a redis claim cache. An empty prefix defaults to
// "bearerkit:claims:"; a non-positive ttl defaults to five minutes to match
// the in-memory backend.
func NewClaimCache(rdb *redis.Client, keyPrefix string, ttl time.Duration) *ClaimCache {
	if keyPrefix == "" {
		keyPrefix = "bearerkit:claims:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ClaimCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (c *ClaimCache) key(rawCredential string) string {
	sum := sha256.Sum256([]byte(rawCredential))
	return c.keyNS + hex.EncodeToString(sum[:])
}

// Get implements claims.Cache.
func (c *ClaimCache) Get(ctx context.Context, rawCredential string) (claims.Set, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(rawCredential)).Bytes()
	if err == redis.Nil {
		return claims.Set{}, false, nil
	}
	if err != nil {
		return claims.Set{}, false, err
	}
	var s claims.Set
	if err := json.Unmarshal(val, &s); err != nil {
		return claims.Set{}, false, err
	}
	return s, true, nil
}

// Put implements claims.Cache.
func (c *ClaimCache) Put(ctx context.Context, rawCredential string, set claims.Set) error {
	b, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(rawCredential), b, c.ttl).Err()
}
