package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/codefionn/wellspace/internal/dataservice"
	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/fence"
	"github.com/codefionn/wellspace/internal/layout"
	"github.com/codefionn/wellspace/internal/links"
	"github.com/codefionn/wellspace/internal/selection"
	"github.com/codefionn/wellspace/internal/view"
)

// viewState is the transient state of one open view. It is dropped by a
// reset whenever the view's binding changes.
type viewState struct {
	id    string
	fence *fence.Fence

	mu       sync.Mutex
	loaded   bool
	datasets []dataservice.Dataset
	err      error
	empty    error // why nothing is shown: fence.ErrNoEntity or fence.ErrOutOfScope
	resets   int
	// requested is the reset generation an automatic fetch was issued for
	requested int
}

// ViewData is what a view currently shows.
type ViewData struct {
	Loading  bool
	Loaded   bool
	Datasets []dataservice.Dataset
	Err      error
	// Empty explains an empty state: no entity, or an entity outside the
	// scope.
	Empty  error
	Resets int
}

// live recomputes the view's binding without touching w.mu, so fences can
// call it while the workspace lock is held elsewhere.
func (w *Workspace) live(viewID string) fence.Live {
	return func() fence.Context {
		snap := w.sel.Snapshot()
		return fence.Context{
			Entity:   w.effective(viewID, snap),
			Scope:    snap.Scope,
			ScopeGen: snap.ScopeGen,
		}
	}
}

func (w *Workspace) effective(viewID string, snap selection.Snapshot) *entity.Ref {
	base, _ := view.ParseID(viewID)
	if !base.Linkable() {
		if snap.Entity == nil {
			return nil
		}
		r, ok := w.entities.Resolve(snap.Entity.ID, snap.Entity.Path)
		if !ok {
			return nil
		}
		return &r
	}
	return w.links.Effective(viewID, snap.Entity, w.entities)
}

// syncViews makes the view map match ids: new ids get state, missing ones
// are dropped.
func (w *Workspace) syncViews(ids []string) {
	keep := make(map[string]bool, len(ids))
	w.mu.Lock()
	for _, id := range ids {
		keep[id] = true
		if _, ok := w.views[id]; !ok {
			w.views[id] = &viewState{
				id:        id,
				fence:     fence.New(id, w.live(id), fence.WithAudit(w.audit)),
				requested: -1,
			}
		}
	}
	var dropped []*viewState
	for id, vs := range w.views {
		if !keep[id] {
			dropped = append(dropped, vs)
			delete(w.views, id)
		}
	}
	w.mu.Unlock()

	for _, vs := range dropped {
		vs.fence.Reset()
		w.factory.Forget(vs.id)
	}
	w.minter.Observe(ids...)
}

func (w *Workspace) lookup(viewID string) (*viewState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	vs, ok := w.views[viewID]
	return vs, ok
}

// resetView discards a view's transient state; the factory calls it when the
// view's binding changed.
func (w *Workspace) resetView(viewID string, key view.RemountKey) {
	vs, ok := w.lookup(viewID)
	if !ok {
		return
	}
	vs.fence.Reset()
	vs.mu.Lock()
	vs.loaded = false
	vs.datasets = nil
	vs.err = nil
	vs.empty = nil
	vs.resets++
	vs.mu.Unlock()
	w.log.Debug("view %s reset for %s", viewID, key)
}

// Props derives the props of an open or closed view id.
func (w *Workspace) Props(viewID string) view.Props {
	p := w.factory.Build(viewID)
	if tab, ok := w.layout.Find(viewID); ok && tab.Title != "" {
		p.Title = tab.Title
	}
	return p
}

// Views lists the open view ids, sorted.
func (w *Workspace) Views() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.views))
	for id := range w.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Data returns what the view currently shows.
func (w *Workspace) Data(viewID string) (ViewData, error) {
	vs, ok := w.lookup(viewID)
	if !ok {
		return ViewData{}, fmt.Errorf("%w: %s", ErrUnknownView, viewID)
	}
	loading := vs.fence.Loading()
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return ViewData{
		Loading:  loading,
		Loaded:   vs.loaded,
		Datasets: append([]dataservice.Dataset(nil), vs.datasets...),
		Err:      vs.err,
		Empty:    vs.empty,
		Resets:   vs.resets,
	}, nil
}

// Sync rebuilds every open view, resetting those whose binding changed, and
// starts a fetch for every entity-bound view that has nothing loaded.
func (w *Workspace) Sync() {
	for _, id := range w.Views() {
		w.factory.Build(id)
		w.ensureLoaded(id)
	}
}

func (w *Workspace) ensureLoaded(viewID string) {
	if w.data == nil {
		return
	}
	base, _ := view.ParseID(viewID)
	if !base.Linkable() {
		return
	}
	vs, ok := w.lookup(viewID)
	if !ok {
		return
	}
	vs.mu.Lock()
	idle := !vs.loaded && vs.err == nil && vs.empty == nil && vs.requested != vs.resets
	if idle {
		vs.requested = vs.resets
	}
	vs.mu.Unlock()
	if !idle {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_ = w.Refresh(w.ctx, viewID)
	}()
}

// Refresh fetches the datasets of the view's effective entity and applies
// them if the view is still bound to it when they arrive. It blocks until
// the fetch finishes or times out.
func (w *Workspace) Refresh(ctx context.Context, viewID string) error {
	if w.data == nil {
		return nil
	}
	vs, ok := w.lookup(viewID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, viewID)
	}

	vs.mu.Lock()
	gen := vs.resets
	vs.mu.Unlock()

	err := fence.Run(ctx, vs.fence, w.timeout,
		func(ctx context.Context, s fence.Stamp) ([]dataservice.Dataset, error) {
			ref, ok := w.entities.Resolve(s.EntityID, s.EntityPath)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, s.EntityID)
			}
			return w.data.Datasets(ctx, ref)
		},
		func(ds []dataservice.Dataset, err error) {
			vs.mu.Lock()
			vs.loaded = err == nil
			vs.datasets = ds
			vs.err = err
			vs.empty = nil
			vs.mu.Unlock()
		},
	)

	switch {
	case err == nil:
		w.selectDefaultDataset(viewID)
		return nil
	case errors.Is(err, fence.ErrStale):
		return nil
	case errors.Is(err, fence.ErrNoEntity), errors.Is(err, fence.ErrOutOfScope):
		vs.mu.Lock()
		if vs.resets == gen {
			vs.loaded = false
			vs.datasets = nil
			vs.empty = err
		}
		vs.mu.Unlock()
		return nil
	case errors.Is(err, context.Canceled):
		return err
	default:
		w.log.Error("fetch for %s failed: %v", viewID, err)
		w.audit.Error("Error loading well data for %s: %v", viewID, err)
		return err
	}
}

func (w *Workspace) selectDefaultDataset(viewID string) {
	vs, ok := w.lookup(viewID)
	if !ok {
		return
	}
	ent := w.effective(viewID, w.sel.Snapshot())
	if ent == nil {
		return
	}
	vs.mu.Lock()
	first := ""
	if len(vs.datasets) > 0 {
		first = vs.datasets[0].Name
	}
	vs.mu.Unlock()

	w.mu.Lock()
	if _, ok := w.datasets[ent.ID]; !ok && first != "" {
		w.datasets[ent.ID] = first
	}
	w.mu.Unlock()
}

// ToggleLink flips the view between following the global selection and
// staying on the entity it shows now. It never fetches by itself; the
// changed binding remounts the view on the next Sync.
func (w *Workspace) ToggleLink(viewID string) error {
	base, _ := view.ParseID(viewID)
	if !base.Linkable() {
		return fmt.Errorf("%s views cannot be unlinked", base)
	}
	if _, ok := w.lookup(viewID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, viewID)
	}
	current := w.effective(viewID, w.sel.Snapshot())
	w.links.Toggle(viewID, current)
	return nil
}

func (w *Workspace) toggleFromView(viewID string) {
	if err := w.ToggleLink(viewID); err != nil {
		w.log.Warn("toggle link: %v", err)
	}
}

// Links returns the link registry in its persisted form.
func (w *Workspace) Links() map[string]links.Record {
	return w.links.Snapshot()
}

// IsLinked reports whether the view follows the global selection.
func (w *Workspace) IsLinked(viewID string) bool {
	return w.links.IsLinked(viewID)
}

// OpenWindow opens a new floating view of type base and returns its id.
// Plot types get numbered ids; other types open under their own id.
func (w *Workspace) OpenWindow(base view.BaseType) (string, error) {
	if !base.Known() {
		return "", fmt.Errorf("unknown panel type %q", base)
	}
	id, index, title := w.minter.Next(base)
	if err := w.layout.Float(layout.Tab{ID: id, Title: title, Closable: true, Group: view.DefaultGroup}, layout.StaggeredGeometry(index)); err != nil {
		return "", err
	}
	w.syncViews(w.layout.TabIDs())
	w.addVisible(string(base))

	w.mu.Lock()
	w.activeWindow = id
	w.mu.Unlock()

	w.audit.Success("Opened %s", title)
	w.Sync()
	return id, nil
}

// CloseView removes the view from the layout and forgets its link state.
func (w *Workspace) CloseView(viewID string) error {
	if !w.layout.Remove(viewID) {
		return fmt.Errorf("%w: %s", ErrUnknownView, viewID)
	}
	w.links.Forget(viewID)
	ids := w.layout.TabIDs()
	w.syncViews(ids)

	base, _ := view.ParseID(viewID)
	still := false
	for _, id := range ids {
		if b, _ := view.ParseID(id); b == base {
			still = true
			break
		}
	}
	if !still {
		w.removeVisible(string(base))
	}

	w.mu.Lock()
	delete(w.axes, viewID)
	if w.activeWindow == viewID {
		w.activeWindow = ""
	}
	if w.crossTarget == viewID {
		w.crossTarget = ""
	}
	w.mu.Unlock()
	return nil
}

// TogglePanel closes the panel when it is open and opens it floating
// otherwise. It reports whether the panel is open afterwards.
func (w *Workspace) TogglePanel(id string) (bool, error) {
	if _, ok := w.layout.Find(id); ok {
		return false, w.CloseView(id)
	}
	base, _ := view.ParseID(id)
	if !base.Known() {
		return false, fmt.Errorf("unknown panel %q", id)
	}
	if base.Multi() {
		_, err := w.OpenWindow(base)
		return err == nil, err
	}

	tab := layout.Tab{ID: id, Title: view.TitleFor(id), Closable: base != view.EmptyDock, Group: view.DefaultGroup}
	if err := w.layout.Float(tab, layout.StaggeredGeometry(1)); err != nil {
		return false, err
	}
	w.syncViews(w.layout.TabIDs())
	w.addVisible(string(base))
	w.Sync()
	return true, nil
}

// Visible returns the visible base panel ids.
func (w *Workspace) Visible() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.visible...)
}

func (w *Workspace) addVisible(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, v := range w.visible {
		if v == id {
			return
		}
	}
	w.visible = append(w.visible, id)
}

func (w *Workspace) removeVisible(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.visible[:0]
	for _, v := range w.visible {
		if v != id {
			out = append(out, v)
		}
	}
	w.visible = out
}

// SelectDataset remembers the dataset chosen for an entity.
func (w *Workspace) SelectDataset(entityID, name string) {
	w.mu.Lock()
	w.datasets[entityID] = name
	w.mu.Unlock()
	w.audit.Info("Selected dataset %q for well %s", name, entityID)
}

// OpenCrossPlotControl points the control panel at a cross plot window and
// makes sure the panel is open.
func (w *Workspace) OpenCrossPlotControl(windowID string) error {
	if b, _ := view.ParseID(windowID); b != view.CrossPlot {
		return fmt.Errorf("%s is not a cross plot window", windowID)
	}
	if _, ok := w.layout.Find(windowID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, windowID)
	}
	w.mu.Lock()
	w.crossTarget = windowID
	w.mu.Unlock()

	if _, ok := w.layout.Find(string(view.CrossPlotControl)); !ok {
		if _, err := w.TogglePanel(string(view.CrossPlotControl)); err != nil {
			return err
		}
	}
	return nil
}

// SetCrossPlotAxes sets the logs plotted by a cross plot window.
func (w *Workspace) SetCrossPlotAxes(windowID string, axes view.Axes) {
	w.mu.Lock()
	w.axes[windowID] = axes
	w.mu.Unlock()
}

// view.Source

func (w *Workspace) Selection() selection.Snapshot {
	return w.sel.Snapshot()
}

func (w *Workspace) Effective(viewID string) *entity.Ref {
	return w.effective(viewID, w.sel.Snapshot())
}

func (w *Workspace) Dataset(entityID string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.datasets[entityID]
}

func (w *Workspace) CrossPlotAxes(windowID string) (view.Axes, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.axes[windowID]
	return a, ok
}

func (w *Workspace) CrossPlotTarget() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.crossTarget
}

// Layout returns the layout engine.
func (w *Workspace) Layout() layout.Engine {
	return w.layout
}
