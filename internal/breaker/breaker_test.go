package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// S4: threshold=3, reset=1000ms. Three failures -> OPEN; advance 1000ms ->
// HALF_OPEN; success -> CLOSED, counter=0.
func TestBreakerLifecycle(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	b := New(3, 1000*time.Millisecond, WithClock(clock))
	assert.Equal(t, Closed, b.GetState())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.GetState())
	b.RecordFailure()
	assert.Equal(t, Open, b.GetState())
	assert.True(t, b.IsOpen())

	now = now.Add(999 * time.Millisecond)
	assert.Equal(t, Open, b.GetState())

	now = now.Add(1 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.GetState())
	assert.False(t, b.IsOpen())

	b.RecordSuccess()
	assert.Equal(t, Closed, b.GetState())

	// Counter reset: three more failures should be required before opening again.
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	b := New(2, 100*time.Millisecond, WithClock(clock))
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Open, b.GetState())

	now = now.Add(200 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.GetState())

	b.RecordFailure()
	assert.Equal(t, Open, b.GetState())
}

func TestAllowProbeOnlyOncePerHalfOpen(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	b := New(1, 10*time.Millisecond, WithClock(clock))
	b.RecordFailure()
	assert.Equal(t, Open, b.GetState())

	now = now.Add(20 * time.Millisecond)
	assert.True(t, b.AllowProbe())
	assert.False(t, b.AllowProbe())
}
