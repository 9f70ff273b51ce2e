package entity

import "sync"

// Set is the collection of entities currently loaded from the data service.
// Pinned references are resolved against it, so a pin survives reloads only
// while a matching entity is present.
type Set struct {
	mu     sync.RWMutex
	byID   map[string]Ref
	byPath map[string]Ref
	order  []string
}

// NewSet builds a set from refs. Later duplicates replace earlier ones.
func NewSet(refs ...Ref) *Set {
	s := &Set{}
	s.Replace(refs)
	return s
}

// Replace swaps the whole content of the set.
func (s *Set) Replace(refs []Ref) {
	byID := make(map[string]Ref, len(refs))
	byPath := make(map[string]Ref, len(refs))
	order := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.ID == "" {
			r.ID = r.Name
		}
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
		if p := NormalizePath(r.Path); p != "" {
			byPath[p] = r
		}
	}

	s.mu.Lock()
	s.byID = byID
	s.byPath = byPath
	s.order = order
	s.mu.Unlock()
}

// Resolve finds the entity matching id, or failing that path.
func (s *Set) Resolve(id, p string) (Ref, bool) {
	if s == nil {
		return Ref{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id != "" {
		if r, ok := s.byID[id]; ok {
			return r, true
		}
	}
	if np := NormalizePath(p); np != "" {
		if r, ok := s.byPath[np]; ok {
			return r, true
		}
	}
	return Ref{}, false
}

// Has reports whether r is still loaded.
func (s *Set) Has(r Ref) bool {
	_, ok := s.Resolve(r.ID, r.Path)
	return ok
}

// List returns the entities in load order.
func (s *Set) List() []Ref {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ref, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the number of loaded entities.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
