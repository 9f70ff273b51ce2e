// Package view defines the panel catalogue, view ids and the factory that
// derives a view's props from the workspace state.
package view

import (
	"fmt"
	"sync"

	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/selection"
)

// Axes is the x/y log pair shown by a cross plot.
type Axes struct {
	XLog string `json:"xLog"`
	YLog string `json:"yLog"`
}

// Source is the read side of the workspace the factory derives props from.
type Source interface {
	Selection() selection.Snapshot
	// Effective is the entity view should render, nil for none.
	Effective(viewID string) *entity.Ref
	IsLinked(viewID string) bool
	Dataset(entityID string) string
	CrossPlotAxes(windowID string) (Axes, bool)
	CrossPlotTarget() string
}

// RemountKey changes whenever the view's binding changes. A view whose key
// changes is reset before it renders again. It covers every field a fetch
// stamp is checked against, so a discarded fetch always comes with a reset.
type RemountKey struct {
	Base       BaseType
	Scope      string
	ScopeGen   uint64
	EntityID   string
	EntityPath string
	Link       string
}

func (k RemountKey) String() string {
	return fmt.Sprintf("%s-%s#%d-%s-%s", k.Base, k.Scope, k.ScopeGen, k.EntityID, k.Link)
}

// Props is everything a view needs to render.
type Props struct {
	ViewID      string
	Base        BaseType
	WindowIndex int
	Title       string
	Group       string

	Scope  entity.Scope
	Entity *entity.Ref

	Linkable bool
	Linked   bool
	// ToggleLink flips the view's link state; nil for views that always
	// follow the global selection.
	ToggleLink func()

	Dataset string

	// Cross plot windows carry their axes; the control panel carries the
	// window it drives.
	Axes         Axes
	TargetWindow string

	Key RemountKey
}

// Factory builds props and resets views whose binding changed.
type Factory struct {
	src    Source
	toggle func(viewID string)
	reset  func(viewID string, key RemountKey)

	mu   sync.Mutex
	last map[string]RemountKey
}

// NewFactory creates a factory. toggle is bound into ToggleLink; reset is
// called with the view id and new key whenever its remount key changes.
func NewFactory(src Source, toggle func(viewID string), reset func(viewID string, key RemountKey)) *Factory {
	return &Factory{
		src:    src,
		toggle: toggle,
		reset:  reset,
		last:   make(map[string]RemountKey),
	}
}

// Build derives the props for viewID. Calling it again with unchanged state
// returns equal props and does not reset the view.
func (f *Factory) Build(viewID string) Props {
	base, index := ParseID(viewID)
	sel := f.src.Selection()

	p := Props{
		ViewID:      viewID,
		Base:        base,
		WindowIndex: index,
		Title:       TitleFor(viewID),
		Group:       DefaultGroup,
		Scope:       sel.Scope,
		Linkable:    base.Linkable(),
		Linked:      true,
	}

	if p.Linkable {
		p.Entity = f.src.Effective(viewID)
		p.Linked = f.src.IsLinked(viewID)
		if f.toggle != nil {
			p.ToggleLink = func() { f.toggle(viewID) }
		}
	} else {
		p.Entity = sel.Entity
	}

	if p.Entity != nil && p.Linkable {
		p.Dataset = f.src.Dataset(p.Entity.ID)
	}

	switch base {
	case CrossPlot:
		p.Axes, _ = f.src.CrossPlotAxes(viewID)
	case CrossPlotControl:
		p.TargetWindow = f.src.CrossPlotTarget()
		if p.TargetWindow != "" {
			p.Axes, _ = f.src.CrossPlotAxes(p.TargetWindow)
		}
	}

	p.Key = RemountKey{Base: base, Scope: sel.Scope.Key(), ScopeGen: sel.ScopeGen, Link: "linked"}
	if p.Entity != nil {
		p.Key.EntityID = p.Entity.ID
		p.Key.EntityPath = entity.NormalizePath(p.Entity.Path)
	}
	if !p.Linked {
		p.Key.Link = "unlinked"
	}

	f.mu.Lock()
	prev, seen := f.last[viewID]
	f.last[viewID] = p.Key
	f.mu.Unlock()

	if seen && prev != p.Key && f.reset != nil {
		f.reset(viewID, p.Key)
	}
	return p
}

// Forget drops the remembered key of a closed view.
func (f *Factory) Forget(viewID string) {
	f.mu.Lock()
	delete(f.last, viewID)
	f.mu.Unlock()
}
