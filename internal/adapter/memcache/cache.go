// Package memcache implements the cache port with a small in-process map
// bounded by entry count. Eviction is by oldest insertion time, not access
// recency, and expired entries are treated as absent and lazily purged.
package memcache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Cache is a fixed-capacity insertion-ordered cache.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = oldest insertion
	now        func() time.Time
}

// New creates a cache holding at most maxEntries values.
func New(maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get retrieves a value. Entries past their TTL are treated as absent and
// removed.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeLocked(el)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a value with the given TTL. Overwriting a key counts as a fresh
// insertion. When at capacity, the entry with the oldest insertion time is
// evicted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	e := &entry{key: key, value: value, expiresAt: c.now().Add(ttl)}
	c.entries[key] = c.order.PushBack(e)
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Len returns the number of stored entries, counting expired ones not yet
// purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
}
