// Package engine implements the top-level flow: it accepts queries, drives
// the three pipeline tiers against the task store, and enforces caching,
// coalescing, deadlines, and backpressure.
//
// The engine is split across files:
//
//   - engine.go:  construction, collaborator handles, lifecycle
//   - process.go: the public entry point, input validation, admission,
//     cache consultation, and request coalescing
//   - flow.go:    the per-task state machine
//   - metrics.go: counters and the latency histogram
//   - events.go:  the monitoring event stream
package engine

import (
	"sync"
	"time"

	"vendora/internal/cache"
	"vendora/internal/config"
	"vendora/internal/dispatch"
	"vendora/internal/insight"
	"vendora/internal/logging"
	"vendora/internal/specialist"
	"vendora/internal/taskstore"
	"vendora/internal/validator"
)

// Deps are the collaborator handles the engine drives. All of them must be
// safe for concurrent use.
type Deps struct {
	Store      *taskstore.Store
	Cache      *cache.Cache
	Dispatcher *dispatch.Dispatcher
	Standard   specialist.Specialist
	Senior     specialist.Specialist
	Validator  *validator.Validator
}

// flight is one in-progress computation that coalesced callers wait on.
type flight struct {
	done chan struct{}
	resp *insight.Response
	err  error
}

// Engine is the flow orchestrator.
type Engine struct {
	flow     config.FlowConfig
	cacheCfg config.CacheConfig
	deps     Deps

	mu       sync.Mutex
	inflight map[string]*flight
	active   int
	closed   bool

	metrics metrics

	events chan Event

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// New constructs the engine and starts its retention janitor.
func New(flow config.FlowConfig, cacheCfg config.CacheConfig, deps Deps) *Engine {
	e := &Engine{
		flow:        flow,
		cacheCfg:    cacheCfg,
		deps:        deps,
		inflight:    make(map[string]*flight),
		events:      make(chan Event, eventBuffer),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	e.metrics.init()
	go e.janitor()
	return e
}

// janitor sweeps terminal tasks past the retention window.
func (e *Engine) janitor() {
	defer close(e.janitorDone)

	retention := e.flow.TaskRetention.Std()
	interval := retention / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.janitorStop:
			return
		case <-ticker.C:
			if n := e.deps.Store.SweepTerminal(time.Now().Add(-retention)); n > 0 {
				logging.EngineDebug("janitor swept %d terminal tasks", n)
			}
		}
	}
}

// Close stops accepting work and shuts the janitor down. In-flight tasks run
// to completion on their own deadlines.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.janitorStop)
	<-e.janitorDone
}

// specialistFor resolves the tier-2 variant for a routing decision.
func (e *Engine) specialistFor(kind insight.SpecialistKind) specialist.Specialist {
	if kind == insight.SpecialistSenior {
		return e.deps.Senior
	}
	return e.deps.Standard
}
