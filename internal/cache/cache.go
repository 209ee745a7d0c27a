// Package cache provides a bounded in-memory blob cache with LRU eviction.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// CacheEntry represents a cached item.
type CacheEntry struct {
	Data      []byte
	ExpiresAt time.Time // zero means no expiry
}

// IsExpired checks if the cache entry has expired at now.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Cache is an interface for caching blobs by key.
type Cache interface {
	// Get retrieves a cached blob.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a blob. A zero ttl uses the cache default.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a blob.
	Delete(ctx context.Context, key string) error

	// Clear drops every entry.
	Clear(ctx context.Context) error

	// Stats returns cache statistics.
	Stats() CacheStats
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

type item struct {
	key   string
	entry CacheEntry
}

// memoryCache is an in-memory implementation of Cache. Entries are kept in
// recency order; the least recently used one is evicted first.
type memoryCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front is most recent
	size     int64
	maxSize  int64
	maxItems int
	ttl      time.Duration
	now      func() time.Time
	stats    CacheStats
}

// NewMemoryCache creates a new in-memory cache bounded by maxSize bytes and
// maxItems entries. A zero defaultTTL keeps entries until evicted.
func NewMemoryCache(maxSize int64, maxItems int, defaultTTL time.Duration) Cache {
	return newMemoryCache(maxSize, maxItems, defaultTTL, time.Now)
}

func newMemoryCache(maxSize int64, maxItems int, defaultTTL time.Duration, now func() time.Time) *memoryCache {
	return &memoryCache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		maxSize:  maxSize,
		maxItems: maxItems,
		ttl:      defaultTTL,
		now:      now,
	}
}

// Get retrieves a cached blob. The returned slice must not be modified.
func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	it := el.Value.(*item)
	if it.entry.IsExpired(c.now()) {
		c.removeLocked(el)
		c.stats.Evictions++
		c.stats.Misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	c.stats.Hits++
	return it.entry.Data, true
}

// Set stores a blob.
func (c *memoryCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	size := int64(len(data))
	if size > c.maxSize {
		return fmt.Errorf("cache: entry of %d bytes exceeds capacity of %d", size, c.maxSize)
	}
	if ttl == 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := CacheEntry{Data: data}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	for c.order.Len() > 0 && (c.size+size > c.maxSize || c.order.Len() >= c.maxItems) {
		c.removeLocked(c.order.Back())
		c.stats.Evictions++
	}

	c.entries[key] = c.order.PushFront(&item{key: key, entry: entry})
	c.size += size
	return nil
}

// Delete removes a blob.
func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Clear drops every entry and resets statistics.
func (c *memoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
	c.stats = CacheStats{}
	return nil
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.size
	stats.Items = c.order.Len()
	return stats
}

// removeLocked must be called with the lock held.
func (c *memoryCache) removeLocked(el *list.Element) {
	it := c.order.Remove(el).(*item)
	delete(c.entries, it.key)
	c.size -= int64(len(it.entry.Data))
}
