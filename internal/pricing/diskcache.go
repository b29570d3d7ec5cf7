package pricing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const equityCacheFile = "equity_prices.json"

// diskCache persists equity quotes across process restarts as a small JSON
// file keyed by ticker. Read/write errors degrade to cache misses: a broken
// cache must never block a price fetch.
type diskCache struct {
	path    string
	ttl     time.Duration
	nowFunc func() time.Time

	mu sync.Mutex
}

type diskEntry struct {
	Price      string `json:"price"`
	ObservedAt int64  `json:"observed_at"`
}

func newDiskCache(dir string, ttl time.Duration) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &diskCache{
		path:    filepath.Join(dir, equityCacheFile),
		ttl:     ttl,
		nowFunc: time.Now,
	}, nil
}

func (c *diskCache) get(key string) (Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return Quote{}, false
	}

	entry, ok := entries[key]
	if !ok {
		return Quote{}, false
	}

	observed := time.Unix(entry.ObservedAt, 0)
	if c.nowFunc().Sub(observed) > c.ttl {
		return Quote{}, false
	}

	price, err := decimal.NewFromString(entry.Price)
	if err != nil {
		return Quote{}, false
	}

	return Quote{Key: key, USD: price, ObservedAt: observed}, true
}

func (c *diskCache) put(q Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		entries = make(map[string]diskEntry)
	}

	entries[q.Key] = diskEntry{
		Price:      q.USD.String(),
		ObservedAt: q.ObservedAt.Unix(),
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode equity cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write equity cache: %w", err)
	}
	return nil
}

// load reads the cache file. Caller must hold c.mu.
func (c *diskCache) load() (map[string]diskEntry, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]diskEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
