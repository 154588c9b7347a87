// Package coordinator implements the federated search orchestration from
// spec §4.6: cache consult and single-flight, per-system fan-out bounded
// by the concurrency pool, primary-then-fallback adapter sequencing, a
// global search deadline, and result aggregation.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tbbooher/argus-panoptes/internal/adapter"
	"github.com/tbbooher/argus-panoptes/internal/aggregator"
	"github.com/tbbooher/argus-panoptes/internal/apperr"
	"github.com/tbbooher/argus-panoptes/internal/cache"
	"github.com/tbbooher/argus-panoptes/internal/concurrency"
	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

// SystemRegistry is the subset of *registry.AdapterRegistry the
// coordinator depends on, kept as an interface so tests can substitute a
// stub without constructing a real registry.
type SystemRegistry interface {
	EnabledSystems() []model.LibrarySystem
	AdaptersFor(systemID model.LibrarySystemId) []adapter.Adapter
}

const (
	DefaultGlobalTimeout    = 10 * time.Second
	DefaultPerSystemTimeout = 8 * time.Second
)

// Config holds the coordinator's tunable deadlines, independent of any
// one adapter's own per-request timeout.
type Config struct {
	GlobalTimeout    time.Duration
	PerSystemTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.GlobalTimeout <= 0 {
		c.GlobalTimeout = DefaultGlobalTimeout
	}
	if c.PerSystemTimeout <= 0 {
		c.PerSystemTimeout = DefaultPerSystemTimeout
	}
	return c
}

// MetricsRecorder receives one observation per per-system search
// outcome. Coordinator works fine with a nil recorder; RecordSystemResult
// is only called when one is set via SetMetrics.
type MetricsRecorder interface {
	RecordSystemResult(systemID, result string)
}

// Coordinator runs one federated search across every enabled system in
// the registry, deduplicating concurrent callers for the same ISBN via
// the search cache.
type Coordinator struct {
	registry SystemRegistry
	pool     *concurrency.Pool
	cache    *cache.SearchCache
	cfg      Config
	metrics  MetricsRecorder

	now   func() time.Time
	newID func() string
}

// New creates a Coordinator wired against an already-built adapter
// registry, concurrency pool, and search cache.
func New(reg SystemRegistry, pool *concurrency.Pool, searchCache *cache.SearchCache, cfg Config) *Coordinator {
	return &Coordinator{
		registry: reg,
		pool:     pool,
		cache:    searchCache,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// SetMetrics attaches a MetricsRecorder for per-system search outcome
// counters. Safe to call once after New; nil disables recording.
func (c *Coordinator) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

func (c *Coordinator) recordMetric(systemID model.LibrarySystemId, result string) {
	if c.metrics != nil {
		c.metrics.RecordSystemResult(string(systemID), result)
	}
}

// Search runs (or reuses a cached/in-flight) federated search for rawISBN.
func (c *Coordinator) Search(ctx context.Context, rawISBN string) (*model.SearchResult, error) {
	parsed, err := isbn.Parse(rawISBN)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, err.Error())
	}

	if cached, ok := c.cache.Get(parsed.ISBN13); ok {
		out := *cached
		out.FromCache = true
		return &out, nil
	}

	result, err := c.cache.GetOrCompute(ctx, parsed.ISBN13, func(computeCtx context.Context) (*model.SearchResult, error) {
		return c.runSearch(computeCtx, rawISBN, parsed)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runSearch performs the actual fan-out. With the search cache enabled it
// runs once per ISBN at a time, via the cache's single-flight group; a
// disabled cache calls it once per Search call.
func (c *Coordinator) runSearch(ctx context.Context, rawISBN string, parsed isbn.Result) (*model.SearchResult, error) {
	if ctx.Err() != nil {
		return nil, apperr.Wrap(apperr.KindSearchTimeout, "search deadline elapsed before dispatch", ctx.Err())
	}

	result := &model.SearchResult{
		RequestID: c.newID(),
		RawISBN:   rawISBN,
		ISBN13:    string(parsed.ISBN13),
		StartedAt: c.now(),
	}

	systems := c.registry.EnabledSystems()
	result.SystemsSearched = len(systems)

	deadlineCtx, cancel := context.WithTimeout(ctx, c.cfg.GlobalTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(deadlineCtx)

	var (
		mu       sync.Mutex
		holdings []model.BookHolding
	)

	for _, system := range systems {
		system := system
		g.Go(func() error {
			systemCtx, cancel := context.WithTimeout(gctx, c.cfg.PerSystemTimeout)
			defer cancel()

			found, protocol, searchErr := c.searchSystem(systemCtx, system, parsed.ISBN13)

			mu.Lock()
			defer mu.Unlock()
			if searchErr != nil {
				kind := apperr.KindOf(searchErr)
				result.Errors = append(result.Errors, model.AdapterError{
					SystemID:  system.ID,
					Protocol:  protocol,
					ErrorType: string(kind),
					Message:   searchErr.Error(),
				})
				if kind == apperr.KindTimeout {
					result.SystemsTimedOut++
					c.recordMetric(system.ID, "timeout")
				} else {
					result.SystemsFailed++
					c.recordMetric(system.ID, "failed")
				}
				return nil
			}
			holdings = append(holdings, found...)
			result.SystemsSucceeded++
			c.recordMetric(system.ID, "success")
			return nil
		})
	}

	// Every goroutine above always returns nil; g.Wait() only ever
	// reports ctx cancellation by itself (never a task error).
	_ = g.Wait()

	result.IsPartial = errors.Is(deadlineCtx.Err(), context.DeadlineExceeded)

	deduped, summaries := aggregator.Aggregate(holdings)
	result.Holdings = deduped
	result.Systems = summaries
	result.TotalCopies, result.TotalAvailable = aggregator.Totals(summaries)

	result.CompletedAt = c.now()
	return result, nil
}

// searchSystem tries system's adapters in order (primary, then
// fallbacks), stopping at the first success. Auth and rate-limit
// failures are terminal for this system and never trigger a fallback
// attempt; connection, timeout, parse, and circuit-open failures do
// (spec §4.6 step 3).
func (c *Coordinator) searchSystem(ctx context.Context, system model.LibrarySystem, isbn13 isbn.ISBN13) ([]model.BookHolding, string, error) {
	return c.searchSystemWithAdapters(ctx, system, isbn13, c.registry.AdaptersFor(system.ID))
}

// searchSystemWithAdapters is searchSystem's pure body, split out so
// tests can exercise the fallback sequencing against stub adapters
// directly.
func (c *Coordinator) searchSystemWithAdapters(ctx context.Context, system model.LibrarySystem, isbn13 isbn.ISBN13, adapters []adapter.Adapter) ([]model.BookHolding, string, error) {
	if len(adapters) == 0 {
		return nil, "", apperr.New(apperr.KindConfiguration, "no adapters configured for system "+string(system.ID))
	}

	var (
		lastErr      error
		lastProtocol string
	)

	for _, ad := range adapters {
		lastProtocol = ad.Protocol()

		release, err := c.pool.Acquire(ctx, system.ID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				lastErr = apperr.Timeout("concurrency slot wait deadline exceeded", err)
			} else {
				lastErr = apperr.Connection("concurrency slot wait cancelled", err)
			}
			break
		}

		outcome, searchErr := ad.Search(ctx, isbn13, system)
		release()

		if searchErr == nil {
			return outcome.Holdings, lastProtocol, nil
		}
		lastErr = searchErr

		kind := apperr.KindOf(searchErr)
		if kind == apperr.KindAuth || kind == apperr.KindRateLimit {
			break
		}
	}

	return nil, lastProtocol, lastErr
}
