// Package entity holds the canonical reference type for records owned by the
// external data service (wells) and the scope (project) that contains them.
package entity

import (
	"path"
	"strings"
)

// Ref identifies an entity without carrying any of its contents.
// ID and Path are required; Name is display only.
type Ref struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	Scope string `json:"scope,omitempty"`
}

// IsZero reports whether r carries no identity.
func (r Ref) IsZero() bool {
	return r.ID == "" && r.Path == ""
}

// Same reports whether two references point at the same entity.
func (r Ref) Same(other Ref) bool {
	if r.ID != "" && other.ID != "" {
		return r.ID == other.ID
	}
	return r.Path != "" && NormalizePath(r.Path) == NormalizePath(other.Path)
}

// DisplayName returns the name, falling back to the id.
func (r Ref) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// Scope is the containing context (project) entities must live under.
type Scope struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// IsZero reports whether no scope is open.
func (s Scope) IsZero() bool {
	return s.Path == ""
}

// Key returns the normalized path used when comparing scopes.
func (s Scope) Key() string {
	return NormalizePath(s.Path)
}

// NormalizePath turns a path from either platform into slash form without a
// trailing separator.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// Contains reports whether entityPath equals scopePath or is nested under it.
// An empty scope contains everything; an empty entity path is only contained
// by an empty scope.
func Contains(scopePath, entityPath string) bool {
	scope := NormalizePath(scopePath)
	if scope == "" {
		return true
	}
	ent := NormalizePath(entityPath)
	if ent == "" {
		return false
	}
	if ent == scope {
		return true
	}
	if scope == "/" {
		return strings.HasPrefix(ent, "/")
	}
	return strings.HasPrefix(ent, scope+"/")
}

// Belongs reports whether r is addressable inside s.
func (s Scope) Belongs(r Ref) bool {
	return Contains(s.Path, r.Path)
}
