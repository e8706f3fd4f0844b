package feed

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	body    []byte
	expires time.Time
}

// Cache holds successful responses for a fixed TTL. Concurrent misses for
// the same key share one fetch. Failures are never cached.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now, entries: map[string]cacheEntry{}}
}

// GetOrFetch returns the cached body for key or calls fetch. hit reports
// whether the value came from the cache. The shared fetch runs detached from
// any one caller, so fetch must bound itself; a caller whose ctx ends stops
// waiting without failing the others.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) ([]byte, error)) (body []byte, hit bool, err error) {
	if b, ok := c.get(key); ok {
		return b, true, nil
	}
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if b, ok := c.get(key); ok {
			return b, nil
		}
		b, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{body: b, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return b, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.([]byte), false, nil
	}
}

func (c *Cache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.body, true
}

// SetTTL changes the lifetime of future entries.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = map[string]cacheEntry{}
	c.mu.Unlock()
}
