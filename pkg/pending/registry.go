// Package pending tracks actions that have been accepted but not yet completed.
// Its content is what gets persisted for crash recovery.
package pending

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
)

type entry struct {
	seq uint64
	act *action.Action
}

// Registry is a concurrent set of pending actions keyed by action id.
// The zero value is not usable; call NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]entry
	nextSeq uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]entry)}
}

// Add inserts the action if no action with the same id is pending.
// It reports whether the action was inserted.
func (r *Registry) Add(act *action.Action) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[act.ID]; ok {
		return false
	}

	r.entries[act.ID] = entry{seq: r.nextSeq, act: act}
	r.nextSeq++

	return true
}

// Remove deletes the action with the given id and reports whether it was present.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}

	delete(r.entries, id)

	return true
}

// Contains reports whether an action with the given id is pending.
func (r *Registry) Contains(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[id]

	return ok
}

// Len returns the number of pending actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Snapshot returns the persisted form of every pending action, in acceptance order.
func (r *Registry) Snapshot() []action.Record {
	r.mu.RLock()
	ordered := make([]entry, 0, len(r.entries))

	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	r.mu.RUnlock()

	slices.SortFunc(ordered, func(a, b entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})

	records := make([]action.Record, len(ordered))
	for i, e := range ordered {
		records[i] = e.act.Record()
	}

	return records
}
