package memorystore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/open-rails/bearerkit/claims"
)

func TestClaimCachePutGet(t *testing.T) {
	c, err := NewClaimCache(time.Minute, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	set := claims.Set{Subject: "idp|abc", Email: "a@x.com"}
	if err := c.Put(ctx, "tok-1", set); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.Get(ctx, "tok-1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Subject != "idp|abc" || got.Email != "a@x.com" {
		t.Errorf("wrong claims back: %+v", got)
	}

	if _, ok, _ := c.Get(ctx, "tok-unknown"); ok {
		t.Error("unexpected hit for unknown credential")
	}
}

func TestClaimCacheTTLIsNotSliding(t *testing.T) {
	c, err := NewClaimCache(30*time.Millisecond, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Put(ctx, "tok", claims.Set{Subject: "s"}); err != nil {
		t.Fatal(err)
	}

	// Reads inside the window must not extend it.
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "tok"); !ok {
		t.Fatal("entry expired too early")
	}
	time.Sleep(15 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "tok"); ok {
		t.Error("entry still present after TTL despite intermediate read")
	}
}

func TestClaimCacheEvictsLRU(t *testing.T) {
	c, err := NewClaimCache(time.Minute, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	_ = c.Put(ctx, "a", claims.Set{Subject: "a"})
	_ = c.Put(ctx, "b", claims.Set{Subject: "b"})
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Fatal("expected a present")
	}
	// b is now least recently used; inserting c evicts it.
	_ = c.Put(ctx, "c", claims.Set{Subject: "c"})

	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("b survived past capacity")
	}
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Error("a should have been retained")
	}
	if c.Len() > 2 {
		t.Errorf("capacity exceeded: %d", c.Len())
	}
}

func TestClaimCacheConcurrentAccess(t *testing.T) {
	c, err := NewClaimCache(time.Minute, 100)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("tok-%d", j%20)
				_ = c.Put(ctx, key, claims.Set{Subject: key})
				_, _, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}
