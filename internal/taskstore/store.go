// Package taskstore owns task lifecycle records. All task mutation in the
// pipeline funnels through Update, which applies the caller's mutation under
// per-task exclusion and rejects anything that would violate a lifecycle
// invariant. Nothing is persisted; the store is process-local.
package taskstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"vendora/internal/insight"
	"vendora/internal/logging"
)

// entry pairs a live task record with its own lock so updates on one task
// never block readers or writers of another.
type entry struct {
	mu   sync.RWMutex
	task *insight.Task
}

// Store is an in-memory indexed collection of tasks.
type Store struct {
	mu          sync.RWMutex
	byID        map[string]*entry
	maxDrafts   int
	maxRevision int
}

// New creates a task store enforcing the given revision budget.
func New(maxRevisions int) *Store {
	return &Store{
		byID:        make(map[string]*entry),
		maxDrafts:   maxRevisions + 1,
		maxRevision: maxRevisions,
	}
}

// Create mints a new pending task and indexes it.
func (s *Store) Create(query, tenantID string, context map[string]any, fingerprint string, deadline time.Time) *insight.Task {
	now := time.Now()
	task := &insight.Task{
		ID:          uuid.NewString(),
		Query:       query,
		TenantID:    tenantID,
		Context:     context,
		Fingerprint: fingerprint,
		Status:      insight.StatusPending,
		CurrentTier: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Deadline:    deadline,
	}

	s.mu.Lock()
	s.byID[task.ID] = &entry{task: task}
	s.mu.Unlock()

	logging.StoreDebug("task %s created (tenant=%s fingerprint=%s)", task.ID, tenantID, fingerprint)
	return task.Clone()
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Get returns a consistent snapshot of the task.
func (s *Store) Get(id string) (*insight.Task, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, insight.NewError(insight.KindPreconditionFailed, "unknown task %s", id)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.task.Clone(), nil
}

// Update applies the mutation to a working copy of the task under exclusion,
// verifies lifecycle invariants, and commits. The returned snapshot reflects
// the committed state. Invariant violations surface as precondition_failed
// and leave the record untouched.
func (s *Store) Update(id string, mutate func(*insight.Task) error) (*insight.Task, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, insight.NewError(insight.KindPreconditionFailed, "unknown task %s", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.task
	work := prev.Clone()
	if err := mutate(work); err != nil {
		return nil, err
	}
	if err := s.checkInvariants(prev, work); err != nil {
		logging.Get(logging.CategoryStore).Warnf("rejected update on task %s: %v", id, err)
		return nil, err
	}

	work.CurrentTier = insight.TierFor(work.Status)
	work.UpdatedAt = time.Now()
	e.task = work
	return work.Clone(), nil
}

// checkInvariants compares the stored record against the mutated copy.
func (s *Store) checkInvariants(prev, next *insight.Task) error {
	if next.ID != prev.ID || next.TenantID != prev.TenantID || next.Query != prev.Query {
		return insight.NewError(insight.KindPreconditionFailed, "task identity fields are immutable")
	}
	if prev.Status.Terminal() {
		return insight.NewError(insight.KindPreconditionFailed,
			"task %s is terminal (%s); no further transitions", prev.ID, prev.Status)
	}
	if next.Status != prev.Status && !insight.ValidTransition(prev.Status, next.Status) {
		return insight.NewError(insight.KindPreconditionFailed,
			"invalid transition %s -> %s on task %s", prev.Status, next.Status, prev.ID)
	}
	if len(next.Drafts) < len(prev.Drafts) {
		return insight.NewError(insight.KindPreconditionFailed, "drafts are append-only")
	}
	if len(next.Drafts) > s.maxDrafts {
		return insight.NewError(insight.KindPreconditionFailed,
			"draft count %d exceeds budget %d", len(next.Drafts), s.maxDrafts)
	}
	if next.RevisionsUsed < prev.RevisionsUsed || next.RevisionsUsed > s.maxRevision {
		return insight.NewError(insight.KindPreconditionFailed,
			"revisions_used %d out of range [%d, %d]", next.RevisionsUsed, prev.RevisionsUsed, s.maxRevision)
	}
	if len(next.Errors) < len(prev.Errors) {
		return insight.NewError(insight.KindPreconditionFailed, "error log is append-only")
	}
	switch next.Status {
	case insight.StatusApproved, insight.StatusDelivered:
		if next.ValidatedDraft == nil || !next.HasDraft(next.ValidatedDraft) {
			return insight.NewError(insight.KindPreconditionFailed,
				"status %s requires a validated draft from the draft list", next.Status)
		}
	case insight.StatusRejected:
		if next.RevisionsUsed != s.maxRevision {
			return insight.NewError(insight.KindPreconditionFailed,
				"rejection before the revision budget (%d) is spent", s.maxRevision)
		}
	}
	return nil
}

// ListActive returns snapshots of every non-terminal task.
func (s *Store) ListActive() []*insight.Task {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var active []*insight.Task
	for _, e := range entries {
		e.mu.RLock()
		if !e.task.Status.Terminal() {
			active = append(active, e.task.Clone())
		}
		e.mu.RUnlock()
	}
	return active
}

// ActiveByFingerprint returns a snapshot of a non-terminal task with the
// given fingerprint, if one exists. It scans every task; there is no
// fingerprint index. The engine's request coalescing keys on its own
// in-flight table, not on this lookup.
func (s *Store) ActiveByFingerprint(fingerprint string) (*insight.Task, bool) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.RLock()
		match := e.task.Fingerprint == fingerprint && !e.task.Status.Terminal()
		var snap *insight.Task
		if match {
			snap = e.task.Clone()
		}
		e.mu.RUnlock()
		if match {
			return snap, true
		}
	}
	return nil, false
}

// SweepTerminal removes terminal tasks last updated before the cutoff and
// returns how many were removed. Active tasks are never touched.
func (s *Store) SweepTerminal(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.byID {
		e.mu.RLock()
		sweep := e.task.Status.Terminal() && e.task.UpdatedAt.Before(cutoff)
		e.mu.RUnlock()
		if sweep {
			delete(s.byID, id)
			removed++
		}
	}
	if removed > 0 {
		logging.StoreDebug("swept %d terminal tasks", removed)
	}
	return removed
}

// Len returns the number of tasks currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
