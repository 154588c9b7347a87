// Package adapter defines the per-protocol search contract and the
// BaseAdapter envelope shared by every concrete adapter family: timeout,
// retry, circuit breaker, health tracking, fingerprint generation, and
// status normalization (spec §4.2).
package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/tbbooher/argus-panoptes/internal/apperr"
	"github.com/tbbooher/argus-panoptes/internal/breaker"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/model"
	"github.com/tbbooher/argus-panoptes/internal/retry"
)

// Outcome is the result of one successful adapter search call.
type Outcome struct {
	Holdings     []model.BookHolding
	Protocol     string
	ResponseTime time.Duration
}

// HealthCheckResult is the result of one adapter health probe.
type HealthCheckResult struct {
	Healthy   bool
	Latency   time.Duration
	Message   string
	CheckedAt time.Time
}

// Adapter is the contract every concrete protocol implementation
// satisfies, consumed by the registry and the coordinator.
type Adapter interface {
	Protocol() string
	Search(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) (Outcome, error)
	HealthCheck(ctx context.Context, system model.LibrarySystem) (HealthCheckResult, error)
	Breaker() *breaker.Breaker
}

// ExecuteSearchFunc is the protocol-specific part of a search: build a
// request for system, execute it, and return raw holdings (not yet
// fingerprinted or status-normalized -- BaseAdapter does that uniformly).
type ExecuteSearchFunc func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error)

// ProbeFunc is the protocol-specific health probe.
type ProbeFunc func(ctx context.Context, system model.LibrarySystem) error

// BaseAdapter implements the common envelope from spec §4.2 around a
// protocol-specific ExecuteSearchFunc: per-request timeout, retry with
// backoff, circuit breaker gating, health tracking, fingerprinting, and
// status normalization. Concrete adapters embed it.
type BaseAdapter struct {
	protocol string
	breaker  *breaker.Breaker
	health   *health.Tracker
	timeout  time.Duration
	maxRetries int
	baseDelay  time.Duration

	executeSearch ExecuteSearchFunc
	probe         ProbeFunc

	now func() time.Time
}

// Option configures a BaseAdapter at construction.
type Option func(*BaseAdapter)

// WithRetry overrides the default retry budget (3 retries, 250ms base
// delay). Tests use this to avoid real sleeping.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(a *BaseAdapter) {
		a.maxRetries = maxRetries
		a.baseDelay = baseDelay
	}
}

// WithClock overrides the time source, for deterministic latency tests.
func WithClock(now func() time.Time) Option {
	return func(a *BaseAdapter) { a.now = now }
}

// NewBaseAdapter constructs a BaseAdapter for one (system, protocol)
// instance. timeout is derived from the system's AdapterConfig.
func NewBaseAdapter(protocol string, cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, execute ExecuteSearchFunc, probe ProbeFunc, opts ...Option) *BaseAdapter {
	a := &BaseAdapter{
		protocol:      protocol,
		breaker:       br,
		health:        tracker,
		timeout:       cfg.Timeout(),
		maxRetries:    3,
		baseDelay:     250 * time.Millisecond,
		executeSearch: execute,
		probe:         probe,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Protocol returns the adapter's protocol tag.
func (a *BaseAdapter) Protocol() string { return a.protocol }

// Breaker exposes the adapter's circuit breaker. Search itself gates every
// call on it; the coordinator does not consult it separately.
func (a *BaseAdapter) Breaker() *breaker.Breaker { return a.breaker }

// Search runs the common envelope: breaker gating, retry-wrapped
// protocol execution under a per-attempt timeout, health recording,
// fingerprinting, and status normalization.
func (a *BaseAdapter) Search(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) (Outcome, error) {
	state := a.breaker.GetState()
	if state == breaker.Open {
		return Outcome{}, apperr.New(apperr.KindCircuitOpen, "circuit open for system "+string(system.ID))
	}
	if state == breaker.HalfOpen && !a.breaker.AllowProbe() {
		return Outcome{}, apperr.New(apperr.KindCircuitOpen, "half-open probe already in flight for system "+string(system.ID))
	}

	start := a.now()

	opts := retry.Options{
		MaxRetries: a.maxRetries,
		BaseDelay:  a.baseDelay,
	}

	holdings, err := retry.Do(ctx, opts, func(attemptCtx context.Context) ([]model.BookHolding, error) {
		callCtx, cancel := context.WithTimeout(attemptCtx, a.timeout)
		defer cancel()
		return a.executeSearch(callCtx, isbn13, system)
	})

	elapsed := a.now().Sub(start)

	if err != nil {
		a.breaker.RecordFailure()
		a.health.RecordFailure(system.ID, err, elapsed)
		return Outcome{}, err
	}

	a.breaker.RecordSuccess()
	a.health.RecordSuccess(system.ID, elapsed)

	normalized := make([]model.BookHolding, len(holdings))
	for i, h := range holdings {
		h.Status = NormalizeStatus(h.RawStatus)
		h.Fingerprint = Fingerprint(h.SystemID, h.ISBN, string(h.BranchID), discriminator(h))
		normalized[i] = h
	}

	return Outcome{Holdings: normalized, Protocol: a.protocol, ResponseTime: elapsed}, nil
}

// HealthCheck runs the protocol-specific probe, if any, recording its
// latency and outcome without touching the breaker or retrying.
func (a *BaseAdapter) HealthCheck(ctx context.Context, system model.LibrarySystem) (HealthCheckResult, error) {
	start := a.now()
	if a.probe == nil {
		return HealthCheckResult{Healthy: true, CheckedAt: start}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	err := a.probe(callCtx, system)
	latency := a.now().Sub(start)

	if err != nil {
		return HealthCheckResult{Healthy: false, Latency: latency, Message: err.Error(), CheckedAt: start}, nil
	}
	return HealthCheckResult{Healthy: true, Latency: latency, CheckedAt: start}, nil
}

// discriminator picks the most-unique available field for fingerprinting:
// barcode over call number, per spec §3.
func discriminator(h model.BookHolding) string {
	if h.Barcode != "" {
		return h.Barcode
	}
	if h.CallNumber != "" {
		return h.CallNumber
	}
	return "unknown"
}

// Fingerprint builds the deterministic, lowercase, colon-joined
// duplicate-detection key from spec §3: (systemId, isbn, branchCode,
// discriminator).
func Fingerprint(systemID model.LibrarySystemId, isbn13, branchCode, discriminator string) string {
	parts := []string{string(systemID), isbn13, branchCode, discriminator}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ":")
}

// statusRule is one entry in the shared normalization table (spec
// §4.2.1). Matching is first-match-wins, in table order.
type statusRule struct {
	status     model.ItemStatus
	contains   []string
	startsWith []string
	exact      []string
}

// The checked_out prefixes come first so that "Not Available" is not
// caught by the available rule's "available" substring.
var statusRules = []statusRule{
	{status: model.StatusCheckedOut, startsWith: []string{"due", "checked out", "not available"}},
	{status: model.StatusAvailable, contains: []string{"available", "on shelf", "in library", "check shelf"}, exact: []string{"in"}},
	{status: model.StatusInTransit, contains: []string{"transit"}},
	{status: model.StatusOnHold, contains: []string{"hold"}},
	{status: model.StatusOnOrder, contains: []string{"order"}},
	{status: model.StatusInProcessing, contains: []string{"processing", "cataloging"}},
	{status: model.StatusMissing, contains: []string{"missing", "lost", "withdrawn"}},
}

// NormalizeStatus maps a raw, vendor-specific status string to the
// canonical ItemStatus vocabulary, per the shared substring table in
// spec §4.2.1. First match wins; no match yields StatusUnknown.
func NormalizeStatus(raw string) model.ItemStatus {
	lower := strings.ToLower(strings.TrimSpace(raw))

	for _, rule := range statusRules {
		for _, exact := range rule.exact {
			if lower == exact {
				return rule.status
			}
		}
		for _, sub := range rule.contains {
			if strings.Contains(lower, sub) {
				return rule.status
			}
		}
		for _, prefix := range rule.startsWith {
			if strings.HasPrefix(lower, prefix) {
				return rule.status
			}
		}
	}
	return model.StatusUnknown
}
