// Package concurrency implements the two layered semaphores from spec
// §4.4: a global pool bounding total in-flight outbound requests, and a
// per-host limiter bounding in-flight requests per library system. A
// work item acquires the per-host slot first, then the global slot, to
// keep one slow host from starving global capacity while holding queue
// entries (spec §5).
package concurrency

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tbbooher/argus-panoptes/internal/model"
)

const (
	DefaultMaxConcurrency        = 20
	DefaultMaxPerHostConcurrency = 2
)

// Pool owns the global semaphore and the per-host limiters keyed by
// system id. Per-host limiters are created lazily and never removed
// (the registry is append-only at startup, per spec §5).
type Pool struct {
	global *semaphore.Weighted

	mu       sync.Mutex
	perHost  map[model.LibrarySystemId]*semaphore.Weighted
	hostCap  int64
}

// New creates a Pool with the given global and per-host capacities.
func New(maxConcurrency, maxPerHostConcurrency int) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if maxPerHostConcurrency <= 0 {
		maxPerHostConcurrency = DefaultMaxPerHostConcurrency
	}
	return &Pool{
		global:  semaphore.NewWeighted(int64(maxConcurrency)),
		perHost: make(map[model.LibrarySystemId]*semaphore.Weighted),
		hostCap: int64(maxPerHostConcurrency),
	}
}

// Release is returned by Acquire; calling it releases both slots in the
// reverse order they were acquired.
type Release func()

// Acquire blocks until both the per-host slot and the global slot are
// available, in that order, or ctx is cancelled. Cancellation releases
// any slot already acquired.
func (p *Pool) Acquire(ctx context.Context, systemID model.LibrarySystemId) (Release, error) {
	host := p.hostLimiter(systemID)

	if err := host.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := p.global.Acquire(ctx, 1); err != nil {
		host.Release(1)
		return nil, err
	}

	return func() {
		p.global.Release(1)
		host.Release(1)
	}, nil
}

func (p *Pool) hostLimiter(systemID model.LibrarySystemId) *semaphore.Weighted {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.perHost[systemID]
	if !ok {
		lim = semaphore.NewWeighted(p.hostCap)
		p.perHost[systemID] = lim
	}
	return lim
}
