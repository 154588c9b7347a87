package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

func TestSearchCacheHit(t *testing.T) {
	c := NewSearchCache(10, time.Hour, true)
	isbn13 := isbn.ISBN13("9780306406157")

	result := &model.SearchResult{ISBN13: string(isbn13)}
	c.Set(isbn13, result)

	got, ok := c.Get(isbn13)
	require.True(t, ok)
	assert.Same(t, result, got)
}

func TestSearchCacheDisabledIsNoOp(t *testing.T) {
	c := NewSearchCache(10, time.Hour, false)
	isbn13 := isbn.ISBN13("9780306406157")

	c.Set(isbn13, &model.SearchResult{})
	_, ok := c.Get(isbn13)
	assert.False(t, ok)
}

func TestSearchCacheSingleFlight(t *testing.T) {
	c := NewSearchCache(10, time.Hour, true)
	isbn13 := isbn.ISBN13("9780306406157")

	var calls atomic.Int32
	start := make(chan struct{})

	compute := func(ctx context.Context) (*model.SearchResult, error) {
		calls.Add(1)
		<-start
		return &model.SearchResult{ISBN13: string(isbn13)}, nil
	}

	var wg sync.WaitGroup
	results := make([]*model.SearchResult, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.GetOrCompute(context.Background(), isbn13, compute)
			require.NoError(t, err)
			results[i] = r
		}(i)
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, string(isbn13), r.ISBN13)
	}
}
