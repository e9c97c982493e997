package engine

import (
	"sort"
	"sync"
	"time"

	"vendora/internal/insight"
)

// latencyBounds are the histogram bucket upper bounds, in milliseconds.
var latencyBounds = []int64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

// maxLatencySamples bounds the window percentiles are computed over.
const maxLatencySamples = 4096

// metrics aggregates engine-level counters. All methods are safe for
// concurrent use.
type metrics struct {
	mu sync.Mutex

	totalQueries uint64
	byStatus     map[insight.Status]uint64
	byComplexity map[insight.Complexity]uint64

	cacheLookups   uint64
	cacheHits      uint64
	coalescedCalls uint64
	overloadedHits uint64

	revisions       uint64
	approvedQueries uint64

	latencyBuckets []uint64 // one per bound, plus overflow at the end
	latencySamples []int64  // retained for percentile snapshots
	latencySumMs   int64
}

func (m *metrics) init() {
	m.byStatus = make(map[insight.Status]uint64)
	m.byComplexity = make(map[insight.Complexity]uint64)
	m.latencyBuckets = make([]uint64, len(latencyBounds)+1)
}

func (m *metrics) lookup() {
	m.mu.Lock()
	m.cacheLookups++
	m.mu.Unlock()
}

func (m *metrics) hit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *metrics) coalesced() {
	m.mu.Lock()
	m.coalescedCalls++
	m.mu.Unlock()
}

func (m *metrics) overloaded() {
	m.mu.Lock()
	m.overloadedHits++
	m.mu.Unlock()
}

// finished records a terminal outcome. A zero elapsed duration contributes
// no latency sample (cache hits and failures observed without timing).
func (m *metrics) finished(status insight.Status, complexity insight.Complexity, elapsed time.Duration, revisionsUsed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	m.byStatus[status]++
	if complexity != "" {
		m.byComplexity[complexity]++
	}
	if status == insight.StatusDelivered {
		m.approvedQueries++
		m.revisions += uint64(revisionsUsed)
	}

	if elapsed <= 0 {
		return
	}
	ms := elapsed.Milliseconds()
	if ms == 0 {
		ms = 1 // sub-millisecond flows still count as a sample
	}
	m.latencySumMs += ms
	m.latencySamples = append(m.latencySamples, ms)
	if len(m.latencySamples) > maxLatencySamples {
		m.latencySamples = m.latencySamples[len(m.latencySamples)-maxLatencySamples:]
	}
	for i, bound := range latencyBounds {
		if ms <= bound {
			m.latencyBuckets[i]++
			return
		}
	}
	m.latencyBuckets[len(latencyBounds)]++
}

// Snapshot is a read-only view of the engine's counters.
type Snapshot struct {
	TotalQueries  uint64
	ByStatus      map[insight.Status]uint64
	ByComplexity  map[insight.Complexity]uint64
	CacheHitRate  float64
	Coalesced     uint64
	Overloaded    uint64
	MeanLatencyMs float64
	P50LatencyMs  int64
	P95LatencyMs  int64
	P99LatencyMs  int64
	MeanRevisions float64
	ActiveTasks   int
}

// Metrics returns a consistent snapshot of the engine counters.
func (e *Engine) Metrics() Snapshot {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	m := &e.metrics
	snap := Snapshot{
		TotalQueries: m.totalQueries,
		ByStatus:     make(map[insight.Status]uint64, len(m.byStatus)),
		ByComplexity: make(map[insight.Complexity]uint64, len(m.byComplexity)),
		Coalesced:    m.coalescedCalls,
		Overloaded:   m.overloadedHits,
		ActiveTasks:  e.ActiveTasks(),
	}
	for k, v := range m.byStatus {
		snap.ByStatus[k] = v
	}
	for k, v := range m.byComplexity {
		snap.ByComplexity[k] = v
	}
	if m.cacheLookups > 0 {
		snap.CacheHitRate = float64(m.cacheHits) / float64(m.cacheLookups)
	}
	if n := len(m.latencySamples); n > 0 {
		snap.MeanLatencyMs = float64(m.latencySumMs) / float64(n)
		sorted := append([]int64(nil), m.latencySamples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		snap.P50LatencyMs = percentile(sorted, 0.50)
		snap.P95LatencyMs = percentile(sorted, 0.95)
		snap.P99LatencyMs = percentile(sorted, 0.99)
	}
	if m.approvedQueries > 0 {
		snap.MeanRevisions = float64(m.revisions) / float64(m.approvedQueries)
	}
	return snap
}

func percentile(sorted []int64, q float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
