package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

// SearchCache wraps a MemoryCache[ISBN13, *SearchResult] and adds
// single-flight coalescing: concurrent GetOrCompute calls for the same
// ISBN share one in-flight computation, per spec §4.8. When Enabled is
// false every operation short-circuits to a no-op/miss.
type SearchCache struct {
	enabled bool
	ttl     time.Duration
	mem     *MemoryCache[isbn.ISBN13, *model.SearchResult]
	group   singleflight.Group
}

// NewSearchCache creates a SearchCache with the given capacity and TTL.
func NewSearchCache(maxEntries int, ttl time.Duration, enabled bool) *SearchCache {
	return &SearchCache{
		enabled: enabled,
		ttl:     ttl,
		mem:     New[isbn.ISBN13, *model.SearchResult](maxEntries),
	}
}

// Get returns a cached result for isbn13, if present and unexpired.
func (c *SearchCache) Get(isbn13 isbn.ISBN13) (*model.SearchResult, bool) {
	if !c.enabled {
		return nil, false
	}
	return c.mem.Get(isbn13)
}

// Set stores result for isbn13 under this cache's configured TTL.
func (c *SearchCache) Set(isbn13 isbn.ISBN13, result *model.SearchResult) {
	if !c.enabled {
		return
	}
	c.mem.Set(isbn13, result, c.ttl)
}

// GetOrCompute returns the cached result for isbn13 if present; otherwise
// it calls compute, sharing the in-flight call among any concurrent
// callers for the same ISBN (piggybacking, per spec §4.6 step 1), and
// caches the result on success before returning it.
func (c *SearchCache) GetOrCompute(ctx context.Context, isbn13 isbn.ISBN13, compute func(context.Context) (*model.SearchResult, error)) (*model.SearchResult, error) {
	if !c.enabled {
		return compute(ctx)
	}

	if cached, ok := c.Get(isbn13); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(string(isbn13), func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(isbn13, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.SearchResult), nil
}
