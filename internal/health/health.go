// Package health implements the per-system rolling health tracker from
// spec §4.9: thread-safe success/failure counters, last-error and
// latency bookkeeping, with snapshots that are defensive copies.
package health

import (
	"sync"
	"time"

	"github.com/tbbooher/argus-panoptes/internal/model"
)

// Record is a point-in-time snapshot of one system's health. Mutating a
// returned Record never affects the tracker.
type Record struct {
	SystemID        model.LibrarySystemId
	SuccessCount    int64
	FailureCount    int64
	LastSuccess     time.Time
	LastFailure     time.Time
	LastError       string
	CumulativeTotal time.Duration
}

// SuccessRate returns success / (success+failure), or 0 when there are no samples.
func (r Record) SuccessRate() float64 {
	total := r.SuccessCount + r.FailureCount
	if total == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(total)
}

type entry struct {
	mu     sync.Mutex
	record Record
}

// Tracker is a thread-safe map of per-system health records, lazily
// created on first call and living for the process lifetime.
type Tracker struct {
	mu      sync.RWMutex
	entries map[model.LibrarySystemId]*entry

	now func() time.Time
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		entries: make(map[model.LibrarySystemId]*entry),
		now:     time.Now,
	}
}

func (t *Tracker) entryFor(systemID model.LibrarySystemId) *entry {
	t.mu.RLock()
	e, ok := t.entries[systemID]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[systemID]; ok {
		return e
	}
	e = &entry{record: Record{SystemID: systemID}}
	t.entries[systemID] = e
	return e
}

// RecordSuccess increments the success count and total duration, and
// updates last-success time.
func (t *Tracker) RecordSuccess(systemID model.LibrarySystemId, duration time.Duration) {
	e := t.entryFor(systemID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.SuccessCount++
	e.record.CumulativeTotal += duration
	e.record.LastSuccess = t.now()
}

// RecordFailure increments the failure count and total duration, and
// records the last-error message and time.
func (t *Tracker) RecordFailure(systemID model.LibrarySystemId, err error, duration time.Duration) {
	e := t.entryFor(systemID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.FailureCount++
	e.record.CumulativeTotal += duration
	e.record.LastFailure = t.now()
	if err != nil {
		e.record.LastError = err.Error()
	}
}

// GetSystemHealth returns a defensive copy of the system's health record,
// or the zero Record if it has never been observed.
func (t *Tracker) GetSystemHealth(systemID model.LibrarySystemId) Record {
	t.mu.RLock()
	e, ok := t.entries[systemID]
	t.mu.RUnlock()
	if !ok {
		return Record{SystemID: systemID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// GetSuccessRate is a convenience wrapper around GetSystemHealth().SuccessRate().
func (t *Tracker) GetSuccessRate(systemID model.LibrarySystemId) float64 {
	return t.GetSystemHealth(systemID).SuccessRate()
}

// All returns a defensive-copy snapshot of every tracked system's health.
func (t *Tracker) All() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	records := make([]Record, 0, len(t.entries))
	for _, e := range t.entries {
		e.mu.Lock()
		records = append(records, e.record)
		e.mu.Unlock()
	}
	return records
}
