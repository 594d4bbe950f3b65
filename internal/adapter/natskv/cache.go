// Package natskv implements the cache port on a NATS JetStream key-value
// bucket, letting several agentdeck instances share one remote-response
// cache.
package natskv

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a JetStream KeyValue bucket. Entry TTL is a property of the
// bucket, so the per-call ttl argument is ignored.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a cache over an existing KV bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get retrieves a cached response.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, sanitize(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a response. TTL is managed at bucket level.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, sanitize(key), value)
	return err
}

// Delete removes a cached response.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, sanitize(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// sanitize maps cache keys onto the character set NATS KV accepts for key
// names (no spaces, slashes, or query separators).
func sanitize(key string) string {
	out := []byte(key)
	for i, b := range out {
		switch b {
		case ' ', '/', '?', '&', '=':
			out[i] = '_'
		}
	}
	return string(out)
}
