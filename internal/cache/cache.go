// Package cache provides bounded caches whose entries are computed at most
// once at a time per key.
package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Key is any comparable cache key with a stable string form.
type Key interface {
	comparable
	fmt.Stringer
}

// Result labels reported to a Recorder
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultShared = "shared"
)

// Recorder receives one observation per lookup.
type Recorder interface {
	CacheRequest(cache string, result string)
}

// Cache is an LRU cache with single-flight population. Values are handed to
// callers by reference and must be treated as immutable; eviction only
// drops the cache's reference, never the caller's.
type Cache[K Key, V any] struct {
	name     string
	entries  *lru.Cache[K, V]
	group    singleflight.Group
	recorder Recorder

	// A flight stores its result only if neither the purge epoch nor its
	// key's generation moved while it ran.
	mu    sync.Mutex
	epoch uint64
	gens  map[K]uint64
}

// New creates a cache holding at most size entries.
func New[K Key, V any](name string, size int, recorder Recorder) (*Cache[K, V], error) {
	entries, err := lru.New[K, V](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cache: %w", name, err)
	}
	return &Cache[K, V]{
		name:     name,
		entries:  entries,
		recorder: recorder,
		gens:     make(map[K]uint64),
	}, nil
}

// Name returns the cache name used in metrics.
func (c *Cache[K, V]) Name() string { return c.name }

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int { return c.entries.Len() }

// Get returns a cached value without computing it.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.entries.Get(key)
}

// GetOrCompute returns the cached value for key, or runs compute to produce
// it. Concurrent callers for the same key share one compute call and its
// result. Errors are returned to every waiter and never cached.
//
// compute runs under a context detached from the caller's cancellation, so
// one waiter giving up does not fail the others; a caller whose ctx ends
// returns ctx.Err() while the computation continues for the rest.
func (c *Cache[K, V]) GetOrCompute(ctx context.Context, key K, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.entries.Get(key); ok {
		c.record(ResultHit)
		return v, nil
	}

	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}
		epoch, gen := c.generation(key)
		v, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.epoch == epoch && c.gens[key] == gen {
			c.entries.Add(key, v)
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.record(ResultShared)
		} else {
			c.record(ResultMiss)
		}
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Invalidate drops the entry for key. A computation already in flight for
// key still answers its waiters, but its result is not stored and later
// callers start a fresh computation. Other keys are unaffected.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	c.gens[key]++
	c.entries.Remove(key)
	c.mu.Unlock()
	c.group.Forget(key.String())
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	c.epoch++
	c.gens = make(map[K]uint64)
	c.entries.Purge()
	c.mu.Unlock()
}

func (c *Cache[K, V]) generation(key K) (epoch, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch, c.gens[key]
}

func (c *Cache[K, V]) record(result string) {
	if c.recorder != nil {
		c.recorder.CacheRequest(c.name, result)
	}
}
