// Package selection holds the global selection: the entity the user last
// picked and the scope (project) currently open. It is passed explicitly to
// the pieces that read it so independent workspaces never share state.
package selection

import (
	"sync"

	"github.com/codefionn/wellspace/internal/entity"
)

// Snapshot is a consistent read of the global selection.
type Snapshot struct {
	Entity *entity.Ref
	Scope  entity.Scope
	// ScopeGen increments every time the scope changes.
	ScopeGen uint64
}

// State is the mutable global selection of one workspace.
type State struct {
	mu       sync.RWMutex
	entity   *entity.Ref
	scope    entity.Scope
	scopeGen uint64
	version  uint64
}

// New returns an empty selection.
func New() *State {
	return &State{}
}

// Snapshot returns the current entity and scope.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Entity: cloneRef(s.entity), Scope: s.scope, ScopeGen: s.scopeGen}
}

// Entity returns the selected entity or nil.
func (s *State) Entity() *entity.Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRef(s.entity)
}

// Scope returns the open scope.
func (s *State) Scope() entity.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// Version increments on every observable change.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Select sets the selected entity. It reports whether anything changed.
func (s *State) Select(ref *entity.Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sameRef(s.entity, ref) {
		return false
	}
	s.entity = cloneRef(ref)
	s.version++
	return true
}

// SetScope switches the open scope. A selected entity that does not belong
// to the new scope is cleared in the same step, so no reader ever observes
// the new scope paired with a foreign entity.
func (s *State) SetScope(scope entity.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope.Key() == scope.Key() && s.scope.Name == scope.Name {
		return false
	}
	s.scope = scope
	s.scopeGen++
	if s.entity != nil && !scope.Belongs(*s.entity) {
		s.entity = nil
	}
	s.version++
	return true
}

func cloneRef(r *entity.Ref) *entity.Ref {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func sameRef(a, b *entity.Ref) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Same(*b) && a.Name == b.Name && a.Path == b.Path
}
