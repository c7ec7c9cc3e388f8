package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCounterFixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	clock := newFakeClock()
	c := NewRedisCounter(client, "test:", clock.Now)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		w, err := c.Incr(ctx, "ip:1", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if w.Count != i {
			t.Fatalf("expected count %d, got %d", i, w.Count)
		}
	}
	if ttl := mr.TTL("test:rl:ip:1"); ttl != time.Minute {
		t.Fatalf("expected ttl to be set once, got %v", ttl)
	}

	mr.FastForward(time.Minute)
	w, err := c.Incr(ctx, "ip:1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if w.Count != 1 {
		t.Fatalf("expected a fresh window, got %+v", w)
	}

	if err := c.Reset(ctx, "ip:1"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("test:rl:ip:1") {
		t.Fatal("reset did not delete the key")
	}
}

func TestRedisCounterRepairsMissingTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisCounter(client, "", nil)
	ctx := context.Background()
	if err := mr.Set("rl:k", "4"); err != nil {
		t.Fatal(err)
	}
	w, err := c.Incr(ctx, "k", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if w.Count != 5 || mr.TTL("rl:k") != time.Minute {
		t.Fatalf("expected ttl repaired, got %+v ttl=%v", w, mr.TTL("rl:k"))
	}
}

func TestRedisCache(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisCache(client, "test:")
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got %v %v", ok, err)
	}
	for _, k := range []string{"GET:/api/v1/products?page=1", "GET:/api/v1/products/01J0", "GET:/api/v1/categories"} {
		if err := c.Set(ctx, k, []byte(`{"ok":true}`), time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	val, ok, err := c.Get(ctx, "GET:/api/v1/categories")
	if err != nil || !ok || string(val) != `{"ok":true}` {
		t.Fatalf("expected hit, got %q %v %v", val, ok, err)
	}

	n, err := c.DeleteMatching(ctx, "products")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deleted, got %d %v", n, err)
	}

	mr.FastForward(time.Minute)
	if _, ok, _ := c.Get(ctx, "GET:/api/v1/categories"); ok {
		t.Fatal("entry outlived its ttl")
	}
}

func TestRedisStoresShareNamespace(t *testing.T) {
	mr, client := newTestRedis(t)
	counter, cache := NewRedisStores(client, "storefront:", nil)
	ctx := context.Background()

	if _, err := counter.Incr(ctx, "ip:1", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := cache.Set(ctx, "GET:/api/v1/products", []byte("{}"), time.Minute); err != nil {
		t.Fatal(err)
	}
	keys := mr.Keys()
	want := []string{"storefront:cache:GET:/api/v1/products", "storefront:rl:ip:1"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("expected keys %v, got %v", want, keys)
	}
}

func TestRedisCacheGlobCharactersAreLiteral(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewRedisCache(client, "")
	ctx := context.Background()
	_ = c.Set(ctx, "GET:/a?q=[x]", []byte("1"), time.Minute)
	_ = c.Set(ctx, "GET:/a?q=x", []byte("1"), time.Minute)

	n, err := c.DeleteMatching(ctx, "[x]")
	if err != nil || n != 1 {
		t.Fatalf("expected only the literal match deleted, got %d %v", n, err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	counter := NewRedisCounter(client, "", nil)
	cache := NewRedisCache(client, "")
	mr.Close()

	ctx := context.Background()
	if _, err := counter.Incr(ctx, "k", time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
