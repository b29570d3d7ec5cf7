package pricing

import (
	"sync"
	"time"
)

// memoryCache is the read-through crypto quote cache. Entries live for one
// TTL and are refreshed in place; there is no eviction beyond expiry since
// the asset universe is small and user-defined.
type memoryCache struct {
	ttl     time.Duration
	nowFunc func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	quote     Quote
	expiresAt time.Time
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{
		ttl:     ttl,
		nowFunc: time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *memoryCache) get(key string) (Quote, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.nowFunc().After(entry.expiresAt) {
		return Quote{}, false
	}
	return entry.quote, true
}

func (c *memoryCache) put(q Quote) {
	c.mu.Lock()
	c.entries[q.Key] = cacheEntry{quote: q, expiresAt: c.nowFunc().Add(c.ttl)}
	c.mu.Unlock()
}
