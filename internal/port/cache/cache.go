// Package cache defines the port interface for the remote client's response
// cache.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value response caching. Implementations
// must treat entries past their TTL as absent on read.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
