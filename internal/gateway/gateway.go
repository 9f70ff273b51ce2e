// Package gateway persists layout snapshots keyed by (scope, layout name).
//
// Backends: in-memory, sqlite, a directory of JSON files, an S3 bucket, and
// an HTTP client for a remote wellspace server. Server exposes any backend
// over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/links"
)

// DefaultLayoutName is used when a snapshot is saved or loaded without a name.
const DefaultLayoutName = "default"

// ErrNotFound is returned by Load when no snapshot exists under the key.
var ErrNotFound = errors.New("layout not found")

// ErrInvalid is returned for snapshots that cannot be stored.
var ErrInvalid = errors.New("invalid layout snapshot")

// Snapshot is one saved arrangement.
type Snapshot struct {
	ScopeRef      string                  `json:"scopeRef"`
	LayoutName    string                  `json:"layoutName"`
	LayoutTree    json.RawMessage         `json:"layoutTree"`
	VisiblePanels []string                `json:"visiblePanels"`
	WindowLinks   map[string]links.Record `json:"windowLinks"`
	WindowTitles  map[string]string       `json:"windowTitles,omitempty"`
	SavedAt       time.Time               `json:"savedAt"`
}

// Summary describes a stored snapshot without its contents.
type Summary struct {
	LayoutName string    `json:"layoutName"`
	SavedAt    time.Time `json:"savedAt"`
}

// Gateway stores snapshots. Save overwrites an existing snapshot with the
// same key. Delete of a missing snapshot is not an error.
type Gateway interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, scopeRef, name string) (Snapshot, error)
	Delete(ctx context.Context, scopeRef, name string) error
	List(ctx context.Context, scopeRef string) ([]Summary, error)
	Close() error
}

// ActiveStore is implemented by backends that remember which layout was
// last used in a scope.
type ActiveStore interface {
	SetActive(ctx context.Context, scopeRef, name string) error
	Active(ctx context.Context, scopeRef string) (string, error)
}

// SessionID derives the storage key of a scope from its normalized path.
func SessionID(scopeRef string) string {
	return fmt.Sprintf("project_%016x", xxhash.Sum64String(entity.NormalizePath(scopeRef)))
}

// LayoutName trims name and falls back to DefaultLayoutName.
func LayoutName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultLayoutName
	}
	return name
}

// prepare validates snap and fills defaults before it is stored.
func prepare(snap Snapshot) (Snapshot, error) {
	if entity.NormalizePath(snap.ScopeRef) == "" {
		return Snapshot{}, fmt.Errorf("%w: missing scopeRef", ErrInvalid)
	}
	if len(snap.LayoutTree) == 0 || !json.Valid(snap.LayoutTree) {
		return Snapshot{}, fmt.Errorf("%w: layoutTree is not valid JSON", ErrInvalid)
	}
	snap.LayoutName = LayoutName(snap.LayoutName)
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	if snap.VisiblePanels == nil {
		snap.VisiblePanels = []string{}
	}
	if snap.WindowLinks == nil {
		snap.WindowLinks = map[string]links.Record{}
	}
	return snap, nil
}

func sortSummaries(s []Summary) []Summary {
	sort.Slice(s, func(i, j int) bool { return s[i].LayoutName < s[j].LayoutName })
	return s
}

func cloneSnapshot(s Snapshot) Snapshot {
	c := s
	c.LayoutTree = append(json.RawMessage(nil), s.LayoutTree...)
	c.VisiblePanels = append([]string(nil), s.VisiblePanels...)
	if s.WindowLinks != nil {
		c.WindowLinks = make(map[string]links.Record, len(s.WindowLinks))
		for k, v := range s.WindowLinks {
			c.WindowLinks[k] = v
		}
	}
	if s.WindowTitles != nil {
		c.WindowTitles = make(map[string]string, len(s.WindowTitles))
		for k, v := range s.WindowTitles {
			c.WindowTitles[k] = v
		}
	}
	return c
}
