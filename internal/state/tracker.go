// Package state tracks the derived status of each target and detects
// up/down transitions.
//
// # Status Model
//
// A target is "unknown" until its first check completes, then
// "healthy" or "unhealthy" per the latest result. Status is a cache
// over the most recent CheckResult, always re-derivable by replaying
// it; the tracker never invents state the history cannot reproduce.
//
// # Transition Rules
//
// Only healthy<->unhealthy changes produce notification events.
// The first result after "unknown" records status silently: a target
// coming online for the first time is not an incident, and a target
// that is down from its very first check alerts on the next
// healthy->unhealthy edge, not on discovery.
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshumodi22/kubiq-sub000/internal/history"
	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// entry is the tracked state for one target.
type entry struct {
	status Status
	since  time.Time
	last   types.CheckResult
}

// Status aliases the shared status type for brevity inside the package.
type Status = types.Status

// Tracker maintains current status per target.
type Tracker struct {
	hist *history.Store

	mu      sync.RWMutex
	entries map[string]*entry

	// AggregateWindow bounds the rolling stats attached to snapshots.
	aggregateWindow time.Duration
}

// NewTracker creates a tracker reading rolling aggregates from hist.
func NewTracker(hist *history.Store, aggregateWindow time.Duration) *Tracker {
	if aggregateWindow <= 0 {
		aggregateWindow = 24 * time.Hour
	}
	return &Tracker{
		hist:            hist,
		entries:         make(map[string]*entry),
		aggregateWindow: aggregateWindow,
	}
}

// Ingest processes one check result. It returns a notification event
// and true when the result caused a healthy<->unhealthy transition.
func (t *Tracker) Ingest(result types.CheckResult) (types.NotificationEvent, bool) {
	newStatus := types.StatusFor(result.Success)

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[result.Target]
	if e == nil {
		e = &entry{status: types.StatusUnknown}
		t.entries[result.Target] = e
	}

	prev := e.status
	e.last = result
	if prev != newStatus {
		e.status = newStatus
		e.since = result.Timestamp
	}

	// Transitions through unknown never notify.
	if prev == types.StatusUnknown || prev == newStatus {
		return types.NotificationEvent{}, false
	}

	eventType := types.EventDown
	if newStatus == types.StatusHealthy {
		eventType = types.EventUp
	}

	return types.NotificationEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Target:     result.Target,
		Previous:   prev,
		Current:    newStatus,
		Result:     result,
		OccurredAt: result.Timestamp,
	}, true
}

// Status returns the current status for a target; unknown if the
// target has never been ingested.
func (t *Tracker) Status(target string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e := t.entries[target]; e != nil {
		return e.status
	}
	return types.StatusUnknown
}

// State returns the full derived state for a target.
func (t *Tracker) State(target string) (types.ServiceState, bool) {
	t.mu.RLock()
	e := t.entries[target]
	t.mu.RUnlock()

	if e == nil {
		return types.ServiceState{
			Target: target,
			Status: types.StatusUnknown,
		}, false
	}
	return t.buildState(target, e), true
}

// States returns the derived state of every tracked target, sorted by
// target name.
func (t *Tracker) States() []types.ServiceState {
	t.mu.RLock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	t.mu.RUnlock()

	sort.Strings(names)

	states := make([]types.ServiceState, 0, len(names))
	for _, name := range names {
		if s, ok := t.State(name); ok {
			states = append(states, s)
		}
	}
	return states
}

// Remove forgets a deleted target.
func (t *Tracker) Remove(target string) {
	t.mu.Lock()
	delete(t.entries, target)
	t.mu.Unlock()
}

func (t *Tracker) buildState(target string, e *entry) types.ServiceState {
	t.mu.RLock()
	status := e.status
	since := e.since
	last := e.last
	t.mu.RUnlock()

	stats := t.hist.Aggregate(target, t.aggregateWindow)
	return types.ServiceState{
		Target:        target,
		Status:        status,
		Since:         since,
		LastResult:    &last,
		UptimePercent: stats.UptimePercent,
		AvgLatencyMs:  stats.AvgLatencyMs,
		CheckCount:    stats.Total,
	}
}
