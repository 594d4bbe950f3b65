// Package ristretto implements the cache port using dgraph-io/ristretto.
// Unlike the default memory cache, ristretto evicts by access frequency and
// recency; choose it via remote.cache_backend when cache pressure matters
// more than deterministic eviction order.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache behind the cache port. Each cached response
// costs 1, so capacity is an entry count matching the memory backend.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed cache holding roughly maxEntries responses.
func New(maxEntries int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10, // ~10x expected items, per ristretto guidance
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value in the cache with the given TTL. Admission is
// asynchronous; Wait is called so a stored value is immediately readable,
// matching the synchronous contract the remote client relies on.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, 1, ttl)
	c.c.Wait()
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
