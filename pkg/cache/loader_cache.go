// Package cache provides an LRU cache whose misses are loaded once per key,
// however many callers ask for that key concurrently.
package cache

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoaderCache maps string keys to values produced by a load function.
// Concurrent misses for one key share a single load. The shared load runs on a context
// detached from cancellation, so one caller going away does not fail the others.
type LoaderCache[V any] struct {
	lru   *lru.Cache[string, V]
	group singleflight.Group
	load  func(context.Context, string) (V, error)
}

// NewLoaderCache creates a cache holding at most maxEntries values produced by load.
func NewLoaderCache[V any](maxEntries int, load func(context.Context, string) (V, error)) (*LoaderCache[V], error) {
	lruCache, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	return &LoaderCache[V]{lru: lruCache, load: load}, nil
}

// Get returns the value for key and whether it was already cached.
// Failed loads are not cached.
func (c *LoaderCache[V]) Get(ctx context.Context, key string) (value V, hit bool, err error) {
	if v, ok := c.lru.Get(key); ok {
		return v, true, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		loaded, loadErr := c.load(context.WithoutCancel(ctx), key)
		if loadErr != nil {
			return nil, loadErr
		}

		c.lru.Add(key, loaded)

		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return value, false, fmt.Errorf("waiting for %q: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return value, false, res.Err
		}

		v, _ := res.Val.(V)

		return v, false, nil
	}
}

// Invalidate removes the entry for key.
func (c *LoaderCache[V]) Invalidate(key string) {
	c.lru.Remove(key)
}

// Purge removes all entries.
func (c *LoaderCache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of entries in the cache.
func (c *LoaderCache[V]) Len() int {
	return c.lru.Len()
}
