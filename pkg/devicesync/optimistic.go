package devicesync

import (
	"fmt"
	"sync"
)

// Optimistic is the two-phase wrapper around a Reconciler for edits shown
// to the operator before the server confirms them. Stage applies the value
// locally and remembers what it replaced; Commit forgets the undo state,
// Revert restores it. Each staged edit is keyed by the same idempotency
// key the device sends with the request.
type Optimistic struct {
	mu      sync.Mutex
	rec     *Reconciler
	pending map[string][]undo
}

type undo struct {
	entityID string
	field    string
	value    any
	existed  bool
}

func NewOptimistic(rec *Reconciler) *Optimistic {
	return &Optimistic{rec: rec, pending: make(map[string][]undo)}
}

// Stage applies value locally under key. Staging twice under one key
// accumulates; a Revert undoes everything staged under that key, newest
// first.
func (o *Optimistic) Stage(key, entityID, field string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev, existed := o.rec.Get(entityID, field)
	o.pending[key] = append(o.pending[key], undo{
		entityID: entityID,
		field:    field,
		value:    prev,
		existed:  existed,
	})
	o.rec.SetLocal(entityID, field, value)
}

// Commit accepts the server's result as the new truth for the staged
// fields and discards the undo state.
func (o *Optimistic) Commit(key string, serverFields map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	undos, ok := o.pending[key]
	if !ok {
		return fmt.Errorf("no staged edit for key %q", key)
	}
	delete(o.pending, key)

	for _, u := range undos {
		if v, ok := serverFields[u.field]; ok {
			o.rec.SetLocal(u.entityID, u.field, v)
		}
	}
	return nil
}

// Revert rolls staged fields back to their pre-stage values.
func (o *Optimistic) Revert(key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	undos, ok := o.pending[key]
	if !ok {
		return fmt.Errorf("no staged edit for key %q", key)
	}
	delete(o.pending, key)

	for i := len(undos) - 1; i >= 0; i-- {
		u := undos[i]
		if u.existed {
			o.rec.SetLocal(u.entityID, u.field, u.value)
		}
	}
	return nil
}

// Pending reports whether key has uncommitted staged edits.
func (o *Optimistic) Pending(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pending[key]
	return ok
}
