// Package devicesync is the client-side half of the change feed: a
// field-level cache that staff devices keep while scanning, merged against
// broadcast events, with optimistic local edits that can be rolled back
// when the server rejects them.
package devicesync

import (
	"sync"
	"time"

	"github.com/aforo/aforo/pkg/events"
)

// Reconciler merges remote change events into locally cached entity state
// without clobbering edits the operator just made. Merging is per field: a
// remote value is applied only when it is newer than the local edit by
// more than the grace window, so an event that raced a local edit loses.
type Reconciler struct {
	mu sync.Mutex

	// graceWindow is how much newer a remote timestamp must be than a
	// local edit before it may overwrite that field.
	graceWindow time.Duration

	entities map[string]*entityState

	now func() time.Time
}

type entityState struct {
	fields map[string]fieldState
}

type fieldState struct {
	value       any
	localEditAt time.Time // zero when the value came from the server
}

func NewReconciler(graceWindow time.Duration) *Reconciler {
	return &Reconciler{
		graceWindow: graceWindow,
		entities:    make(map[string]*entityState),
		now:         time.Now,
	}
}

// Get returns a field's current value.
func (r *Reconciler) Get(entityID, field string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[entityID]
	if !ok {
		return nil, false
	}
	f, ok := e.fields[field]
	if !ok {
		return nil, false
	}
	return f.value, true
}

// SetLocal records an operator edit. It starts the grace window for that
// field; remote events older than edit+window will not overwrite it.
func (r *Reconciler) SetLocal(entityID, field string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entity(entityID).fields[field] = fieldState{
		value:       value,
		localEditAt: r.now(),
	}
}

// ApplyRemote merges a broadcast event. Returns the fields that actually
// changed locally; the caller re-renders only those.
func (r *Reconciler) ApplyRemote(ev events.ChangeEvent) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entity(ev.EntityID)
	var applied []string
	for field, value := range ev.Fields {
		cur, exists := e.fields[field]
		if exists && !cur.localEditAt.IsZero() &&
			!ev.ServerTimestamp.After(cur.localEditAt.Add(r.graceWindow)) {
			// Local edit is too fresh; the event lost the race.
			continue
		}
		e.fields[field] = fieldState{value: value}
		applied = append(applied, field)
	}
	return applied
}

// Seed replaces an entity's state wholesale, e.g. after a reconnect
// refetch. Pending local edits are discarded; the server is authoritative
// at resync.
func (r *Reconciler) Seed(entityID string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entityState{fields: make(map[string]fieldState, len(fields))}
	for field, value := range fields {
		e.fields[field] = fieldState{value: value}
	}
	r.entities[entityID] = e
}

// Forget drops an entity from the cache.
func (r *Reconciler) Forget(entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, entityID)
}

func (r *Reconciler) entity(id string) *entityState {
	e, ok := r.entities[id]
	if !ok {
		e = &entityState{fields: make(map[string]fieldState)}
		r.entities[id] = e
	}
	return e
}
