package syncer

import "sync/atomic"

// Metrics collects counters for sync operations.
type Metrics struct {
	hits          atomic.Int64
	misses        atomic.Int64
	fetches       atomic.Int64
	fetchFailures atomic.Int64
	coalesced     atomic.Int64
	staleDrops    atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Fetches       int64 `json:"fetches"`
	FetchFailures int64 `json:"fetch_failures"`
	Coalesced     int64 `json:"coalesced"`
	StaleDrops    int64 `json:"stale_drops"`
}

// RecordHit records a cache hit on the active key.
func (m *Metrics) RecordHit() { m.hits.Add(1) }

// RecordMiss records a miss or stale read on the active key.
func (m *Metrics) RecordMiss() { m.misses.Add(1) }

// RecordFetch records one upstream fetch being issued.
func (m *Metrics) RecordFetch() { m.fetches.Add(1) }

// RecordFetchFailure records one upstream fetch failing.
func (m *Metrics) RecordFetchFailure() { m.fetchFailures.Add(1) }

// RecordCoalesced records a caller that shared an in-flight fetch
// instead of issuing its own.
func (m *Metrics) RecordCoalesced() { m.coalesced.Add(1) }

// RecordStaleDrop records a fetch result discarded because its key was
// no longer active when it resolved.
func (m *Metrics) RecordStaleDrop() { m.staleDrops.Add(1) }

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		Fetches:       m.fetches.Load(),
		FetchFailures: m.fetchFailures.Load(),
		Coalesced:     m.coalesced.Load(),
		StaleDrops:    m.staleDrops.Load(),
	}
}
