// Package cache implements the LRU+TTL map from spec §4.8 and the
// single-flight search cache built on top of it. Generalized from the
// teacher's singleflight.Group usage in internal/controller.go, but with
// explicit LRU eviction (via hashicorp/golang-lru) since spec testable
// property 5 requires a deterministic size bound, unlike the teacher's
// probabilistic ristretto-backed cache.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryCache is a generic LRU cache with a per-entry absolute TTL.
// Invariants: size <= maxEntries always; an overwrite never grows size
// (spec §4.8, testable property 5).
type MemoryCache[K comparable, V any] struct {
	mu   sync.Mutex
	lru  *lru.Cache[K, entry[V]]
	now  func() time.Time
}

// New creates a MemoryCache with the given capacity.
func New[K comparable, V any](maxEntries int) *MemoryCache[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	l, _ := lru.New[K, entry[V]](maxEntries)
	return &MemoryCache[K, V]{lru: l, now: time.Now}
}

// Get returns the value for key, or the zero value and false if missing
// or expired. A hit promotes the entry to most-recently-used; an expired
// entry is removed lazily.
func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value for key with the given TTL, overwriting any existing
// entry (without changing size) or evicting the least-recently-used entry
// if the cache is at capacity.
func (c *MemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry[V]{value: value, expiresAt: c.now().Add(ttl)})
}

// Delete removes key, if present.
func (c *MemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len returns the current number of entries (including not-yet-lazily-evicted expired ones).
func (c *MemoryCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
