package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S5. MemoryCache size 2: set a, b, get a, set c -> get(b)=null, get(a)="1", get(c)="3".
func TestMemoryCacheLRUEviction(t *testing.T) {
	c := New[string, string](2)

	c.Set("a", "1", time.Hour)
	c.Set("b", "2", time.Hour)

	_, ok := c.Get("a") // promotes a to MRU, leaving b as LRU
	require.True(t, ok)

	c.Set("c", "3", time.Hour) // evicts b

	_, ok = c.Get("b")
	assert.False(t, ok)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok = c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "3", v)
}

// Property 5: size <= maxEntries always, and overwriting an existing key
// never grows size.
func TestMemoryCacheSizeInvariant(t *testing.T) {
	c := New[string, string](3)
	for i := 0; i < 10; i++ {
		c.Set("k", "overwritten", time.Hour)
		assert.LessOrEqual(t, c.Len(), 3)
	}
	assert.Equal(t, 1, c.Len())

	c.Set("a", "1", time.Hour)
	c.Set("b", "2", time.Hour)
	c.Set("c", "3", time.Hour)
	assert.LessOrEqual(t, c.Len(), 3)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := New[string, string](2)
	c.now = func() time.Time { return time.Unix(0, 0) }

	c.Set("a", "1", time.Second)
	_, ok := c.Get("a")
	require.True(t, ok)

	c.now = func() time.Time { return time.Unix(2, 0) }
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len()) // lazily removed
}
