package coordinator

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbbooher/argus-panoptes/internal/adapter"
	"github.com/tbbooher/argus-panoptes/internal/apperr"
	"github.com/tbbooher/argus-panoptes/internal/breaker"
	"github.com/tbbooher/argus-panoptes/internal/cache"
	"github.com/tbbooher/argus-panoptes/internal/concurrency"
	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

// fakeAdapter lets tests script a fixed outcome or error sequence without
// any real network traffic.
type fakeAdapter struct {
	protocol string
	br       *breaker.Breaker
	results  []fakeResult
	calls    int
}

type fakeResult struct {
	holdings []model.BookHolding
	err      error
}

func (f *fakeAdapter) Protocol() string { return f.protocol }

func (f *fakeAdapter) Search(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) (adapter.Outcome, error) {
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	r := f.results[idx]
	if r.err != nil {
		return adapter.Outcome{}, r.err
	}
	return adapter.Outcome{Holdings: r.holdings, Protocol: f.protocol}, nil
}

func (f *fakeAdapter) HealthCheck(ctx context.Context, system model.LibrarySystem) (adapter.HealthCheckResult, error) {
	return adapter.HealthCheckResult{Healthy: true}, nil
}

func (f *fakeAdapter) Breaker() *breaker.Breaker { return f.br }

// fakeRegistry is a minimal SystemRegistry stub: enabled systems plus
// their fixed adapter lists, with no YAML loading or breaker wiring.
type fakeRegistry struct {
	systems  []model.LibrarySystem
	adapters map[model.LibrarySystemId][]adapter.Adapter
}

func (f *fakeRegistry) EnabledSystems() []model.LibrarySystem { return f.systems }

func (f *fakeRegistry) AdaptersFor(id model.LibrarySystemId) []adapter.Adapter {
	return f.adapters[id]
}

func stitchedRegistry(adapters map[string][]adapter.Adapter) *fakeRegistry {
	reg := &fakeRegistry{adapters: map[model.LibrarySystemId][]adapter.Adapter{}}
	for id, ads := range adapters {
		sysID := model.LibrarySystemId(id)
		reg.systems = append(reg.systems, model.LibrarySystem{ID: sysID, Name: id, Enabled: true})
		reg.adapters[sysID] = ads
	}
	sort.Slice(reg.systems, func(i, j int) bool { return reg.systems[i].ID < reg.systems[j].ID })
	return reg
}

func TestSearchSystemReturnsOnFirstSuccess(t *testing.T) {
	fake := &fakeAdapter{
		protocol: "koha-sru",
		br:       breaker.New(5, time.Minute),
		results:  []fakeResult{{holdings: []model.BookHolding{{ISBN: "9780000000002", SystemID: "sys-a"}}}},
	}

	c := &Coordinator{pool: concurrency.New(10, 10), now: time.Now}
	system := model.LibrarySystem{ID: "sys-a", Name: "Sys A"}

	holdings, protocol, err := c.searchSystemWithAdapters(context.Background(), system, isbn.ISBN13("9780000000002"), []adapter.Adapter{fake})
	require.NoError(t, err)
	assert.Equal(t, "koha-sru", protocol)
	assert.Len(t, holdings, 1)
	assert.Equal(t, 1, fake.calls)
}

func TestSearchSystemFallsBackOnConnectionError(t *testing.T) {
	primary := &fakeAdapter{
		protocol: "sru",
		br:       breaker.New(5, time.Minute),
		results:  []fakeResult{{err: apperr.Connection("boom", nil)}},
	}
	fallback := &fakeAdapter{
		protocol: "enterprise",
		br:       breaker.New(5, time.Minute),
		results:  []fakeResult{{holdings: []model.BookHolding{{ISBN: "9780000000002", SystemID: "sys-a"}}}},
	}

	c := &Coordinator{pool: concurrency.New(10, 10), now: time.Now}
	system := model.LibrarySystem{ID: "sys-a", Name: "Sys A"}

	holdings, protocol, err := c.searchSystemWithAdapters(context.Background(), system, isbn.ISBN13("9780000000002"), []adapter.Adapter{primary, fallback})
	require.NoError(t, err)
	assert.Equal(t, "enterprise", protocol)
	assert.Len(t, holdings, 1)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestSearchSystemDoesNotFallBackOnAuthError(t *testing.T) {
	primary := &fakeAdapter{
		protocol: "sru",
		br:       breaker.New(5, time.Minute),
		results:  []fakeResult{{err: apperr.Auth("unauthorized", nil)}},
	}
	fallback := &fakeAdapter{
		protocol: "enterprise",
		br:       breaker.New(5, time.Minute),
		results:  []fakeResult{{holdings: []model.BookHolding{{ISBN: "9780000000002", SystemID: "sys-a"}}}},
	}

	c := &Coordinator{pool: concurrency.New(10, 10), now: time.Now}
	system := model.LibrarySystem{ID: "sys-a", Name: "Sys A"}

	_, protocol, err := c.searchSystemWithAdapters(context.Background(), system, isbn.ISBN13("9780000000002"), []adapter.Adapter{primary, fallback})
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	assert.Equal(t, "sru", protocol)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

// S6: two systems, one succeeds and one exhausts retries with a
// connection error; SystemsSucceeded=1, SystemsFailed=1, one error entry
// typed "connection", isPartial=false.
func TestRunSearchRecordsPartialFailure(t *testing.T) {
	ok := &fakeAdapter{protocol: "sru", br: breaker.New(5, time.Minute), results: []fakeResult{
		{holdings: []model.BookHolding{{
			ISBN: "9780000000002", SystemID: "sys-ok", SystemName: "Sys OK",
			BranchID: "main", BranchName: "Main", Status: model.StatusAvailable,
			Source: model.SourceDirect, Fingerprint: "sys-ok:9780000000002:main:unknown",
		}}},
	}}
	failing := &fakeAdapter{protocol: "sru", br: breaker.New(5, time.Minute), results: []fakeResult{
		{err: apperr.Connection("dial tcp: timeout", nil)},
	}}

	c := &Coordinator{
		pool:     concurrency.New(10, 10),
		cache:    cache.NewSearchCache(10, time.Hour, false),
		cfg:      Config{GlobalTimeout: time.Second, PerSystemTimeout: time.Second},
		now:      time.Now,
		newID:    func() string { return "req-1" },
		registry: stitchedRegistry(map[string][]adapter.Adapter{"sys-ok": {ok}, "sys-fail": {failing}}),
	}

	parsed, err := isbn.Parse("9780000000002")
	require.NoError(t, err)

	result, err := c.runSearch(context.Background(), "9780000000002", parsed)
	require.NoError(t, err)

	assert.Equal(t, 2, result.SystemsSearched)
	assert.Equal(t, 1, result.SystemsSucceeded)
	assert.Equal(t, 1, result.SystemsFailed)
	assert.Equal(t, 0, result.SystemsTimedOut)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "connection", result.Errors[0].ErrorType)
	assert.False(t, result.IsPartial)
	require.Len(t, result.Holdings, 1)
}

func TestSearchReturnsValidationErrorForMalformedISBN(t *testing.T) {
	c := New(stitchedRegistry(nil), concurrency.New(10, 10), cache.NewSearchCache(10, time.Hour, true), Config{})
	_, err := c.Search(context.Background(), "not-an-isbn")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSearchServesFromCacheOnSecondCall(t *testing.T) {
	ok := &fakeAdapter{protocol: "sru", br: breaker.New(5, time.Minute), results: []fakeResult{
		{holdings: []model.BookHolding{{
			ISBN: "9780000000002", SystemID: "sys-ok", SystemName: "Sys OK",
			BranchID: "main", BranchName: "Main", Status: model.StatusAvailable,
			Source: model.SourceDirect, Fingerprint: "sys-ok:9780000000002:main:unknown",
		}}},
	}}

	c := New(stitchedRegistry(map[string][]adapter.Adapter{"sys-ok": {ok}}), concurrency.New(10, 10), cache.NewSearchCache(10, time.Hour, true), Config{})

	first, err := c.Search(context.Background(), "9780000000002")
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := c.Search(context.Background(), "9780000000002")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, ok.calls)
}

// fakeMetrics records every (systemID, result) pair it's given, for
// asserting the coordinator reports outcomes without depending on a real
// metrics backend.
type fakeMetrics struct {
	calls []string
}

func (f *fakeMetrics) RecordSystemResult(systemID, result string) {
	f.calls = append(f.calls, systemID+":"+result)
}

func TestRunSearchRecordsMetricsPerSystemOutcome(t *testing.T) {
	ok := &fakeAdapter{protocol: "sru", br: breaker.New(5, time.Minute), results: []fakeResult{
		{holdings: []model.BookHolding{{
			ISBN: "9780000000002", SystemID: "sys-ok", SystemName: "Sys OK",
			BranchID: "main", BranchName: "Main", Status: model.StatusAvailable,
			Source: model.SourceDirect, Fingerprint: "sys-ok:9780000000002:main:unknown",
		}}},
	}}
	failing := &fakeAdapter{protocol: "sru", br: breaker.New(5, time.Minute), results: []fakeResult{
		{err: apperr.New(apperr.KindAuth, "bad credentials")},
	}}

	reg := stitchedRegistry(map[string][]adapter.Adapter{
		"sys-ok":   {ok},
		"sys-fail": {failing},
	})
	metrics := &fakeMetrics{}
	c := New(reg, concurrency.New(10, 10), cache.NewSearchCache(10, time.Hour, true), Config{})
	c.SetMetrics(metrics)

	parsed, err := isbn.Parse("9780000000002")
	require.NoError(t, err)
	_, err = c.runSearch(context.Background(), "9780000000002", parsed)
	require.NoError(t, err)

	sort.Strings(metrics.calls)
	assert.Equal(t, []string{"sys-fail:failed", "sys-ok:success"}, metrics.calls)
}
