// Package cache provides a bounded, time-boxed read-through cache. It is an
// optimization only; a miss always falls back to the loader.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache holds values of one type keyed by string.
type Cache[T any] struct {
	items   *gocache.Cache
	maxSize int
}

// New creates a cache whose entries expire after ttl. When the cache holds
// maxSize items, new entries are dropped until expired ones are evicted.
func New[T any](ttl time.Duration, maxSize int) *Cache[T] {
	return &Cache[T]{
		items:   gocache.New(ttl, ttl*2),
		maxSize: maxSize,
	}
}

// Get returns a cached value.
func (c *Cache[T]) Get(key string) (T, bool) {
	v, found := c.items.Get(key)
	if !found {
		var zero T

		return zero, false
	}

	typed, ok := v.(T)

	return typed, ok
}

// Set stores value unless the cache is full.
func (c *Cache[T]) Set(key string, value T) bool {
	if c.maxSize > 0 && c.items.ItemCount() >= c.maxSize {
		c.items.DeleteExpired()

		if c.items.ItemCount() >= c.maxSize {
			return false
		}
	}

	c.items.SetDefault(key, value)

	return true
}

// Delete removes key.
func (c *Cache[T]) Delete(key string) {
	c.items.Delete(key)
}

// Len returns the number of stored items, including expired ones not yet evicted.
func (c *Cache[T]) Len() int {
	return c.items.ItemCount()
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Load errors are returned and never cached.
func (c *Cache[T]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	c.Set(key, v)

	return v, nil
}
