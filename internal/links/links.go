// Package links tracks, per view, whether the view follows the global
// selection or is pinned to an entity of its own.
package links

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/codefionn/wellspace/internal/activity"
	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/logger"
)

// State is a view's link state. A view with no entry is Linked.
// When Linked is false, Pin is the pinned reference or nil when the pin
// could not be carried (Unlinked(null)).
type State struct {
	Linked bool
	Pin    *entity.Ref
}

// Record is the persisted form of one entry. IsLocked true means the view is
// locked to the global selection (linked).
type Record struct {
	IsLocked         bool   `json:"isLocked"`
	PinnedEntityID   string `json:"pinnedEntityId,omitempty"`
	PinnedEntityPath string `json:"pinnedEntityPath,omitempty"`
	PinnedEntityName string `json:"pinnedEntityName,omitempty"`
}

// UnmarshalJSON treats a record without isLocked as linked; only an explicit
// false unlinks the view.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var raw struct {
		plain
		IsLocked *bool `json:"isLocked"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record(raw.plain)
	r.IsLocked = raw.IsLocked == nil || *raw.IsLocked
	return nil
}

// Registry maps view ids to link states.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]State
	audit   *activity.Log
	log     *logger.Logger
}

// New creates an empty registry. audit may be nil.
func New(audit *activity.Log) *Registry {
	return &Registry{
		entries: make(map[string]State),
		audit:   audit,
		log:     logger.Global().WithPrefix("links"),
	}
}

// State returns the view's state; absent entries report Linked.
func (r *Registry) State(viewID string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.entries[viewID]
	if !ok {
		return State{Linked: true}
	}
	return State{Linked: st.Linked, Pin: clone(st.Pin)}
}

// IsLinked reports whether the view follows the global selection.
func (r *Registry) IsLinked(viewID string) bool {
	return r.State(viewID).Linked
}

// Toggle flips the view's link state. Going from linked to unlinked pins
// current, the entity the view was showing. It never triggers a fetch.
func (r *Registry) Toggle(viewID string, current *entity.Ref) State {
	r.mu.Lock()
	st, ok := r.entries[viewID]
	if !ok {
		st = State{Linked: true}
	}
	var next State
	if st.Linked {
		next = State{Linked: false, Pin: pinOf(current)}
	} else {
		next = State{Linked: true}
	}
	r.entries[viewID] = next
	r.mu.Unlock()

	if next.Linked {
		r.log.Info("view %s linked to global selection", viewID)
		r.audit.Info("%s linked to global selection", viewID)
	} else {
		name := "nothing"
		if next.Pin != nil {
			name = next.Pin.DisplayName()
		}
		r.log.Info("view %s unlinked, pinned to %s", viewID, name)
		r.audit.Info("%s unlinked, pinned to %s", viewID, name)
	}
	return State{Linked: next.Linked, Pin: clone(next.Pin)}
}

// Effective returns the entity the view should render. A linked view gets
// global; an unlinked view gets its pin. When set is non-nil the result is
// resolved against it and nil is returned for entities that are not loaded.
func (r *Registry) Effective(viewID string, global *entity.Ref, set *entity.Set) *entity.Ref {
	st := r.State(viewID)
	target := global
	if !st.Linked {
		target = st.Pin
	}
	if target == nil {
		return nil
	}
	if set == nil {
		return clone(target)
	}
	resolved, ok := set.Resolve(target.ID, target.Path)
	if !ok {
		return nil
	}
	return &resolved
}

// Forget drops the view's entry, e.g. when the view is closed.
func (r *Registry) Forget(viewID string) {
	r.mu.Lock()
	delete(r.entries, viewID)
	r.mu.Unlock()
}

// Views returns the ids that carry an explicit entry, sorted.
func (r *Registry) Views() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot serializes every entry by reference.
func (r *Registry) Snapshot() map[string]Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Record, len(r.entries))
	for id, st := range r.entries {
		rec := Record{IsLocked: st.Linked}
		if !st.Linked && st.Pin != nil {
			rec.PinnedEntityID = st.Pin.ID
			rec.PinnedEntityPath = st.Pin.Path
			rec.PinnedEntityName = st.Pin.Name
		}
		out[id] = rec
	}
	return out
}

// Restore replaces every entry with records. Pins are kept as references and
// resolved lazily by Effective, so a pin whose entity is not loaded stays
// unlinked and comes back once the entity reappears.
func (r *Registry) Restore(records map[string]Record) {
	entries := make(map[string]State, len(records))
	for id, rec := range records {
		if rec.IsLocked {
			entries[id] = State{Linked: true}
			continue
		}
		st := State{Linked: false}
		if rec.PinnedEntityID != "" || rec.PinnedEntityPath != "" {
			st.Pin = &entity.Ref{ID: rec.PinnedEntityID, Path: rec.PinnedEntityPath, Name: rec.PinnedEntityName}
		}
		entries[id] = st
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
}

func pinOf(ref *entity.Ref) *entity.Ref {
	if ref == nil || ref.IsZero() {
		return nil
	}
	return clone(ref)
}

func clone(ref *entity.Ref) *entity.Ref {
	if ref == nil {
		return nil
	}
	c := *ref
	return &c
}
