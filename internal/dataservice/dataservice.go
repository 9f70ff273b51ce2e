// Package dataservice is the boundary to the external service that owns
// entity records and their datasets. Records are turned into canonical
// entity.Ref values here and nowhere else.
package dataservice

import (
	"context"
	"errors"

	"github.com/codefionn/wellspace/internal/entity"
)

// ErrEntityNotFound is returned when the service does not know the entity.
var ErrEntityNotFound = errors.New("entity not found")

// Log is one curve of a dataset.
type Log struct {
	Name        string `json:"name"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
	LogType     string `json:"log_type,omitempty"`
}

// Dataset is a named group of logs recorded for an entity.
type Dataset struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	WellName  string `json:"wellname,omitempty"`
	Logs      []Log  `json:"well_logs"`
	IndexName string `json:"index_name,omitempty"`
}

// LogNames lists the names of the dataset's logs.
func (d Dataset) LogNames() []string {
	out := make([]string, len(d.Logs))
	for i, l := range d.Logs {
		out[i] = l.Name
	}
	return out
}

// Service is the external data service.
type Service interface {
	// Entities lists the entities contained in scope.
	Entities(ctx context.Context, scope entity.Scope) ([]entity.Ref, error)
	// Datasets fetches the datasets of one entity. Large entities can take
	// minutes; callers bound the wait with ctx.
	Datasets(ctx context.Context, ref entity.Ref) ([]Dataset, error)
}

// record is an entity as the service sends it. Older endpoints name the
// entity through well_name only.
type record struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WellName    string `json:"well_name"`
	Path        string `json:"path"`
	ProjectPath string `json:"projectPath"`
}

// canonical resolves a service record into a Ref. Records without any
// identity are rejected.
func (r record) canonical(scope entity.Scope) (entity.Ref, bool) {
	name := firstNonEmpty(r.Name, r.WellName, r.ID)
	id := firstNonEmpty(r.ID, name)
	if id == "" {
		return entity.Ref{}, false
	}
	p := r.Path
	if p == "" && scope.Path != "" {
		p = entity.NormalizePath(scope.Path) + "/" + name
	}
	owner := firstNonEmpty(r.ProjectPath, scope.Path)
	return entity.Ref{ID: id, Name: name, Path: p, Scope: owner}, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
