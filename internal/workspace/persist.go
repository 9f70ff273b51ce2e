package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/gateway"
	"github.com/codefionn/wellspace/internal/layout"
)

// Save stores the current arrangement of the open scope under name. Nothing
// local changes when the gateway fails.
func (w *Workspace) Save(ctx context.Context, name string) error {
	scope := w.sel.Scope()
	if scope.IsZero() {
		return ErrNoScope
	}
	name = gateway.LayoutName(name)

	tree, err := w.layout.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}
	snap := gateway.Snapshot{
		ScopeRef:      scope.Path,
		LayoutName:    name,
		LayoutTree:    tree,
		VisiblePanels: w.Visible(),
		WindowLinks:   w.links.Snapshot(),
		WindowTitles:  w.layout.Titles(),
	}

	if err := w.gw.Save(ctx, snap); err != nil {
		w.log.Error("failed to save layout %q: %v", name, err)
		w.audit.Error("Failed to save layout %q: %v", name, err)
		return fmt.Errorf("save layout %q: %w", name, err)
	}
	w.setActiveName(ctx, scope, name)
	w.log.Info("saved layout %q for %s", name, scope.Path)
	w.audit.Success("Layout %q saved", name)
	return nil
}

// Load replaces the arrangement with the snapshot stored under name. It
// reports false without error when no such snapshot exists. The local state
// is only touched once the snapshot has been fetched and parsed.
func (w *Workspace) Load(ctx context.Context, name string) (bool, error) {
	scope := w.sel.Scope()
	if scope.IsZero() {
		return false, ErrNoScope
	}
	name = gateway.LayoutName(name)

	snap, err := w.gw.Load(ctx, scope.Path, name)
	if errors.Is(err, gateway.ErrNotFound) {
		w.log.Debug("no saved layout %q for %s", name, scope.Path)
		w.audit.Info("No saved layout %q found", name)
		return false, nil
	}
	if err != nil {
		w.log.Error("failed to load layout %q: %v", name, err)
		w.audit.Error("Failed to load layout %q: %v", name, err)
		return false, fmt.Errorf("load layout %q: %w", name, err)
	}

	tree, err := layout.Parse(snap.LayoutTree)
	if err != nil {
		w.audit.Error("Failed to load layout %q: %v", name, err)
		return false, fmt.Errorf("load layout %q: %w", name, err)
	}

	w.layout.Replace(tree)
	for id, title := range snap.WindowTitles {
		w.layout.SetTitle(id, title)
	}
	w.links.Restore(snap.WindowLinks)
	w.mu.Lock()
	w.visible = append([]string{}, snap.VisiblePanels...)
	w.mu.Unlock()

	w.remountAll()
	w.setActiveName(ctx, scope, name)
	w.log.Info("loaded layout %q for %s", name, scope.Path)
	w.audit.Success("Layout %q loaded", name)
	w.Sync()
	return true, nil
}

// Reset restores the default arrangement, clears every link and removes the
// saved default layout of the open scope.
func (w *Workspace) Reset(ctx context.Context) error {
	w.layout.Replace(layout.DefaultTree())
	w.links.Restore(nil)
	w.mu.Lock()
	w.visible = layout.ResetVisible()
	w.mu.Unlock()

	w.remountAll()
	w.log.Info("layout reset")
	w.audit.Info("Layout reset to default")
	w.Sync()

	scope := w.sel.Scope()
	if scope.IsZero() {
		return nil
	}
	if err := w.gw.Delete(ctx, scope.Path, w.defaultName); err != nil {
		w.log.Error("failed to delete saved layout: %v", err)
		w.audit.Error("Failed to delete saved layout: %v", err)
		return fmt.Errorf("reset layout: %w", err)
	}
	w.setActiveName(ctx, scope, w.defaultName)
	return nil
}

// remountAll drops views that left the layout and resets the others.
func (w *Workspace) remountAll() {
	ids := w.layout.TabIDs()
	w.syncViews(ids)
	for _, id := range ids {
		w.factory.Forget(id)
		w.resetView(id, w.factory.Build(id).Key)
	}

	w.mu.Lock()
	for id := range w.axes {
		if _, ok := w.views[id]; !ok {
			delete(w.axes, id)
		}
	}
	if _, ok := w.views[w.crossTarget]; !ok {
		w.crossTarget = ""
	}
	if _, ok := w.views[w.activeWindow]; !ok {
		w.activeWindow = ""
	}
	w.mu.Unlock()
}

// ListLayouts lists the layouts saved for the open scope.
func (w *Workspace) ListLayouts(ctx context.Context) ([]gateway.Summary, error) {
	scope := w.sel.Scope()
	if scope.IsZero() {
		return nil, ErrNoScope
	}
	return w.gw.List(ctx, scope.Path)
}

// DeleteLayout removes a saved layout of the open scope.
func (w *Workspace) DeleteLayout(ctx context.Context, name string) error {
	scope := w.sel.Scope()
	if scope.IsZero() {
		return ErrNoScope
	}
	name = gateway.LayoutName(name)
	if err := w.gw.Delete(ctx, scope.Path, name); err != nil {
		w.audit.Error("Failed to delete layout %q: %v", name, err)
		return fmt.Errorf("delete layout %q: %w", name, err)
	}
	w.audit.Info("Layout %q deleted", name)
	return nil
}

// ActiveLayoutName returns the layout last saved or loaded in the open scope.
func (w *Workspace) ActiveLayoutName(ctx context.Context) string {
	return w.activeNameFor(ctx, w.sel.Scope())
}

// CurrentLayoutName is the layout this window last saved or loaded in the
// open scope. Unlike ActiveLayoutName it never asks the gateway.
func (w *Workspace) CurrentLayoutName() string {
	key := w.sel.Scope().Key()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if name, ok := w.activeNames[key]; ok {
		return name
	}
	return w.defaultName
}

func (w *Workspace) activeNameFor(ctx context.Context, scope entity.Scope) string {
	if as, ok := w.gw.(gateway.ActiveStore); ok {
		name, err := as.Active(ctx, scope.Path)
		if err != nil {
			w.log.Warn("failed to read active layout: %v", err)
		} else if name != "" {
			return name
		}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if name, ok := w.activeNames[scope.Key()]; ok {
		return name
	}
	return w.defaultName
}

func (w *Workspace) setActiveName(ctx context.Context, scope entity.Scope, name string) {
	w.mu.Lock()
	w.activeNames[scope.Key()] = name
	w.mu.Unlock()

	if as, ok := w.gw.(gateway.ActiveStore); ok {
		if err := as.SetActive(ctx, scope.Path, name); err != nil {
			w.log.Warn("failed to remember active layout %q: %v", name, err)
		}
	}
}
