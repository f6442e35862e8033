package route

import (
	"slices"
	"sync"
)

// OwnershipTracker is the ordered set of route IDs created by one proxy
// instance. The engine's route list is shared by every instance, so this set
// is the only thing that decides which routes an instance may touch.
type OwnershipTracker struct {
	mu  sync.RWMutex
	ids []string
}

// NewOwnershipTracker creates an empty tracker.
func NewOwnershipTracker() *OwnershipTracker {
	return &OwnershipTracker{}
}

// Record adds id to the set. Recording an owned id again is a no-op.
func (t *OwnershipTracker) Record(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.ids, id) {
		t.ids = append(t.ids, id)
	}
}

// Forget removes id from the set.
func (t *OwnershipTracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := slices.Index(t.ids, id); i >= 0 {
		t.ids = slices.Delete(t.ids, i, i+1)
	}
}

// Contains reports whether id was created by this instance.
func (t *OwnershipTracker) Contains(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Contains(t.ids, id)
}

// All returns a copy of the owned ids in registration order.
func (t *OwnershipTracker) All() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.ids)
}

// Len returns the number of owned ids.
func (t *OwnershipTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}

// Reset empties the set and returns the ids it held.
func (t *OwnershipTracker) Reset() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.ids
	t.ids = nil
	return prev
}
