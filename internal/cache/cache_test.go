package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache(1024*1024, 100, 5*time.Minute)
	ctx := context.Background()

	data := []byte("test data")
	if err := cache.Set(ctx, "data/alice/doc.share.1741519101.archive", data, 0); err != nil {
		t.Fatalf("failed to set cache: %v", err)
	}

	got, ok := cache.Get(ctx, "data/alice/doc.share.1741519101.archive")
	if !ok {
		t.Fatal("cache entry not found")
	}
	if string(got) != string(data) {
		t.Fatalf("expected data %q, got %q", data, got)
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1741519100, 0)}
	cache := newMemoryCache(1024*1024, 100, 5*time.Minute, clock.Now)
	ctx := context.Background()

	if err := cache.Set(ctx, "key", []byte("test data"), 100*time.Millisecond); err != nil {
		t.Fatalf("failed to set cache: %v", err)
	}
	if _, ok := cache.Get(ctx, "key"); !ok {
		t.Fatal("cache entry not found immediately after set")
	}

	clock.Advance(150 * time.Millisecond)

	if _, ok := cache.Get(ctx, "key"); ok {
		t.Fatal("cache entry should be expired")
	}
	if stats := cache.Stats(); stats.Items != 0 || stats.Size != 0 {
		t.Fatalf("expired entry should be dropped, got %+v", stats)
	}
}

func TestMemoryCache_NoTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1741519100, 0)}
	cache := newMemoryCache(1024, 10, 0, clock.Now)
	ctx := context.Background()

	if err := cache.Set(ctx, "key", []byte("v"), 0); err != nil {
		t.Fatalf("failed to set cache: %v", err)
	}
	clock.Advance(24 * time.Hour)
	if _, ok := cache.Get(ctx, "key"); !ok {
		t.Fatal("entry without TTL should not expire")
	}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewMemoryCache(1024*1024, 3, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cache.Set(ctx, fmt.Sprintf("key%d", i), []byte("data"), 0); err != nil {
			t.Fatalf("failed to set cache: %v", err)
		}
	}

	// Touch key0 so key1 becomes the eviction candidate.
	if _, ok := cache.Get(ctx, "key0"); !ok {
		t.Fatal("key0 should be cached")
	}
	if err := cache.Set(ctx, "key3", []byte("data"), 0); err != nil {
		t.Fatalf("failed to set cache: %v", err)
	}

	if _, ok := cache.Get(ctx, "key1"); ok {
		t.Fatal("key1 should have been evicted")
	}
	for _, key := range []string{"key0", "key2", "key3"} {
		if _, ok := cache.Get(ctx, key); !ok {
			t.Fatalf("%s should still be cached", key)
		}
	}

	stats := cache.Stats()
	if stats.Items != 3 {
		t.Fatalf("expected 3 items, got %d", stats.Items)
	}
	if stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestMemoryCache_SizeLimit(t *testing.T) {
	cache := NewMemoryCache(10, 100, 0)
	ctx := context.Background()

	if err := cache.Set(ctx, "a", []byte("123456"), 0); err != nil {
		t.Fatalf("failed to set cache: %v", err)
	}
	if err := cache.Set(ctx, "b", []byte("123456"), 0); err != nil {
		t.Fatalf("failed to set cache: %v", err)
	}
	if _, ok := cache.Get(ctx, "a"); ok {
		t.Fatal("a should have been evicted to make room")
	}
	if stats := cache.Stats(); stats.Size != 6 {
		t.Fatalf("expected size 6, got %d", stats.Size)
	}

	if err := cache.Set(ctx, "huge", make([]byte, 11), 0); err == nil {
		t.Fatal("expected an error for an entry larger than the cache")
	}
}

func TestMemoryCache_ReplaceKeepsSizeAccurate(t *testing.T) {
	cache := NewMemoryCache(100, 10, 0)
	ctx := context.Background()

	_ = cache.Set(ctx, "k", []byte("1234567890"), 0)
	_ = cache.Set(ctx, "k", []byte("12"), 0)

	stats := cache.Stats()
	if stats.Items != 1 || stats.Size != 2 {
		t.Fatalf("expected 1 item of 2 bytes, got %+v", stats)
	}
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := NewMemoryCache(1024*1024, 100, 5*time.Minute)
	ctx := context.Background()

	_ = cache.Set(ctx, "key1", []byte("data"), 0)
	_ = cache.Set(ctx, "key2", []byte("data"), 0)

	if err := cache.Delete(ctx, "key1"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, ok := cache.Get(ctx, "key1"); ok {
		t.Fatal("key1 should be deleted")
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	stats := cache.Stats()
	if stats.Items != 0 || stats.Size != 0 || stats.Hits != 0 {
		t.Fatalf("expected empty stats after clear, got %+v", stats)
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(1024*1024, 100, 5*time.Minute)
	ctx := context.Background()

	_ = cache.Set(ctx, "key", []byte("data"), 0)
	cache.Get(ctx, "key")
	cache.Get(ctx, "missing")

	stats := cache.Stats()
	if stats.Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.Size != 4 {
		t.Fatalf("expected size 4, got %d", stats.Size)
	}
}
