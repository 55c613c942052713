// Package history keeps the in-memory check result window per target.
//
// # Design
//
// Each target owns a bounded ring of its most recent CheckResults.
// Appends are O(1), queries return chronological copies, and aggregate
// stats (uptime percent, average latency) are computed over a time
// window on demand. The ring fronts the durable store: durable writes
// go through the result buffer, while every read that only needs the
// recent window is served from memory.
//
// # Uptime Convention
//
// A window containing zero checks reports 100% uptime. An empty window
// nearly always means a freshly added target, and reporting 0% for a
// service that has never failed would read as an outage. Average
// latency considers successful checks only; failed checks carry no
// meaningful latency.
package history

import (
	"sync"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// DefaultWindowSize caps per-target results when the caller supplies none.
const DefaultWindowSize = 1000

// Store is the in-memory history window for all targets.
type Store struct {
	windowSize int

	mu       sync.RWMutex
	byTarget map[string]*series
}

// series is one target's bounded result ring, oldest first.
type series struct {
	results []types.CheckResult
}

// NewStore creates a history store retaining up to windowSize results
// per target.
func NewStore(windowSize int) *Store {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Store{
		windowSize: windowSize,
		byTarget:   make(map[string]*series),
	}
}

// Append records one result for its target, evicting the oldest entry
// when the window is full. Results are immutable once written.
func (s *Store) Append(result types.CheckResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser := s.byTarget[result.Target]
	if ser == nil {
		ser = &series{results: make([]types.CheckResult, 0, s.windowSize)}
		s.byTarget[result.Target] = ser
	}

	if len(ser.results) >= s.windowSize {
		copy(ser.results, ser.results[1:])
		ser.results = ser.results[:len(ser.results)-1]
	}
	ser.results = append(ser.results, result)
}

// Query returns up to limit results for a target, oldest first, newest
// last. limit <= 0 returns the whole window.
func (s *Store) Query(target string, limit int) []types.CheckResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser := s.byTarget[target]
	if ser == nil || len(ser.results) == 0 {
		return nil
	}

	results := ser.results
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}

	out := make([]types.CheckResult, len(results))
	copy(out, results)
	return out
}

// Latest returns the most recent result for a target.
func (s *Store) Latest(target string) (types.CheckResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser := s.byTarget[target]
	if ser == nil || len(ser.results) == 0 {
		return types.CheckResult{}, false
	}
	return ser.results[len(ser.results)-1], true
}

// Aggregate computes uptime and average latency for a target over the
// given window ending now. A zero window aggregates the whole ring.
func (s *Store) Aggregate(target string, window time.Duration) types.AggregateStats {
	return s.AggregateAt(target, window, time.Now())
}

// AggregateAt computes the same stats with an explicit reference time,
// for deterministic read-side projections.
func (s *Store) AggregateAt(target string, window time.Duration, now time.Time) types.AggregateStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if window > 0 {
		cutoff = now.Add(-window)
	}

	stats := types.AggregateStats{}
	var latencySum float64
	var latencyCount int

	if ser := s.byTarget[target]; ser != nil {
		for _, r := range ser.results {
			if window > 0 && r.Timestamp.Before(cutoff) {
				continue
			}
			stats.Total++
			if r.Success {
				stats.Successes++
				latencySum += r.LatencyMs
				latencyCount++
			}
		}
	}

	if stats.Total == 0 {
		stats.UptimePercent = 100
		return stats
	}

	stats.UptimePercent = float64(stats.Successes) / float64(stats.Total) * 100
	if latencyCount > 0 {
		stats.AvgLatencyMs = latencySum / float64(latencyCount)
	}
	return stats
}

// Targets returns the names with at least one recorded result.
func (s *Store) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.byTarget))
	for name := range s.byTarget {
		names = append(names, name)
	}
	return names
}

// Remove drops a target's window, used when the target is deleted.
func (s *Store) Remove(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTarget, target)
}
