// Package workspace is the shell that owns the global selection, the view
// link registry, the layout and the per-view fetch fences, and persists the
// arrangement through a gateway.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/wellspace/internal/activity"
	"github.com/codefionn/wellspace/internal/bus"
	"github.com/codefionn/wellspace/internal/dataservice"
	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/gateway"
	"github.com/codefionn/wellspace/internal/layout"
	"github.com/codefionn/wellspace/internal/links"
	"github.com/codefionn/wellspace/internal/logger"
	"github.com/codefionn/wellspace/internal/selection"
	"github.com/codefionn/wellspace/internal/view"
)

var (
	// ErrNoScope is returned by operations that need an open scope.
	ErrNoScope = errors.New("no scope open")
	// ErrUnknownEntity is returned when selecting an entity that is not loaded.
	ErrUnknownEntity = errors.New("entity not loaded")
	// ErrUnknownView is returned for view ids that are not in the layout.
	ErrUnknownView = errors.New("view not open")
)

// Options wires a workspace to its collaborators. Only Gateway is required.
type Options struct {
	Gateway  gateway.Gateway
	Data     dataservice.Service
	Bus      *bus.Bus
	Activity *activity.Log
	// Layout defaults to an in-memory engine holding the default tree.
	Layout            layout.Engine
	FetchTimeout      time.Duration
	DefaultLayoutName string
	Logger            *logger.Logger
	// OnScopeChange runs after a different scope became current, before its
	// layout is restored.
	OnScopeChange func(ctx context.Context, scope entity.Scope)
}

// Workspace is one window's shell. Every method is safe for concurrent use.
type Workspace struct {
	gw          gateway.Gateway
	data        dataservice.Service
	bus         *bus.Bus
	audit       *activity.Log
	log         *logger.Logger
	timeout     time.Duration
	defaultName string
	onScope     func(ctx context.Context, scope entity.Scope)

	sel      *selection.State
	entities *entity.Set
	links    *links.Registry
	layout   layout.Engine
	minter   *view.Minter
	factory  *view.Factory

	mu           sync.RWMutex
	views        map[string]*viewState
	visible      []string
	datasets     map[string]string // entity id -> dataset name
	axes         map[string]view.Axes
	crossTarget  string
	activeWindow string
	activeNames  map[string]string // scope key -> layout name

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	unsubs  []func()
	started bool
}

// New creates a workspace with the default arrangement and no open scope.
func New(opts Options) *Workspace {
	w := &Workspace{
		gw:          opts.Gateway,
		data:        opts.Data,
		bus:         opts.Bus,
		audit:       opts.Activity,
		log:         opts.Logger,
		timeout:     opts.FetchTimeout,
		defaultName: gateway.LayoutName(opts.DefaultLayoutName),
		onScope:     opts.OnScopeChange,
		sel:         selection.New(),
		entities:    entity.NewSet(),
		layout:      opts.Layout,
		minter:      view.NewMinter(),
		views:       make(map[string]*viewState),
		visible:     layout.DefaultVisible(),
		datasets:    make(map[string]string),
		axes:        make(map[string]view.Axes),
		activeNames: make(map[string]string),
	}
	if w.log == nil {
		w.log = logger.Global().WithPrefix("workspace")
	}
	if w.gw == nil {
		w.gw = gateway.NewMemory()
	}
	if w.layout == nil {
		w.layout = layout.NewMemory(layout.DefaultTree())
	}
	w.links = links.New(w.audit)
	w.factory = view.NewFactory(w, w.toggleFromView, w.resetView)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.syncViews(w.layout.TabIDs())
	return w
}

// Start hooks the workspace to the selection bus.
func (w *Workspace) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	w.started = true
	if w.bus == nil {
		return nil
	}
	w.unsubs = append(w.unsubs,
		w.bus.Subscribe(w.onSelected),
		w.bus.SubscribeFocus(w.onFocus),
	)
	return nil
}

// Close stops background fetches and detaches from the bus. The bus itself
// is owned by the caller.
func (w *Workspace) Close() error {
	w.mu.Lock()
	unsubs := w.unsubs
	w.unsubs = nil
	w.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	w.cancel()
	w.wg.Wait()
	return nil
}

// Wait blocks until every background fetch has finished.
func (w *Workspace) Wait() {
	w.wg.Wait()
}

// Activity returns the activity log, possibly nil.
func (w *Workspace) Activity() *activity.Log {
	return w.audit
}

// Scope returns the open scope.
func (w *Workspace) Scope() entity.Scope {
	return w.sel.Scope()
}

// Entities lists the loaded entities.
func (w *Workspace) Entities() []entity.Ref {
	return w.entities.List()
}

// SelectedEntity returns the global selection.
func (w *Workspace) SelectedEntity() *entity.Ref {
	return w.sel.Entity()
}

// OpenScope loads the scope's entities, makes it current and restores the
// layout last used in it. A failure to list entities leaves the workspace
// unchanged.
func (w *Workspace) OpenScope(ctx context.Context, scope entity.Scope) error {
	var refs []entity.Ref
	if w.data != nil {
		var err error
		refs, err = w.data.Entities(ctx, scope)
		if err != nil {
			w.audit.Error("Failed to load wells for %s: %v", scope.Path, err)
			return fmt.Errorf("open scope %s: %w", scope.Path, err)
		}
	}

	w.entities.Replace(refs)
	changed := w.sel.SetScope(scope)
	w.log.Info("opened scope %s with %d entities", scope.Path, len(refs))
	w.audit.Success("Opened project %s (%d wells)", scopeLabel(scope), len(refs))
	if changed && w.onScope != nil {
		w.onScope(ctx, scope)
	}

	name := w.activeNameFor(ctx, scope)
	if _, err := w.Load(ctx, name); err != nil {
		// the scope is open; a broken layout only costs the arrangement
		w.log.Warn("auto-load of layout %q failed: %v", name, err)
	}
	w.Sync()
	return nil
}

// ReloadEntities refreshes the entity set of the open scope. Pinned views
// whose entity reappears resolve again.
func (w *Workspace) ReloadEntities(ctx context.Context) error {
	scope := w.sel.Scope()
	if scope.IsZero() {
		return ErrNoScope
	}
	if w.data == nil {
		return nil
	}
	refs, err := w.data.Entities(ctx, scope)
	if err != nil {
		w.audit.Error("Failed to reload wells: %v", err)
		return err
	}
	w.entities.Replace(refs)

	if cur := w.sel.Entity(); cur != nil && !w.entities.Has(*cur) {
		w.sel.Select(nil)
	}
	w.Sync()
	return nil
}

// SelectEntity makes ref the global selection and announces it to other
// windows. ref must be one of the loaded entities.
func (w *Workspace) SelectEntity(ref entity.Ref) error {
	resolved, ok := w.entities.Resolve(ref.ID, ref.Path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, ref.DisplayName())
	}
	if !w.sel.Select(&resolved) {
		return nil
	}

	scope := w.sel.Scope()
	w.log.Debug("selected %s", resolved.ID)
	w.audit.Info("User selected well: %s", resolved.DisplayName())
	if w.bus != nil {
		w.bus.Publish(resolved, scope)
	}
	w.Sync()
	return nil
}

// onSelected applies selections made in other windows of the session.
func (w *Workspace) onSelected(ev bus.Selected) {
	if !ev.Remote {
		return
	}
	scope := w.sel.Scope()
	if ev.Scope.Key() != "" && ev.Scope.Key() != scope.Key() {
		w.log.Debug("ignoring remote selection from scope %s", ev.Scope.Path)
		return
	}
	resolved, ok := w.entities.Resolve(ev.Entity.ID, ev.Entity.Path)
	if !ok {
		w.log.Debug("ignoring remote selection of unknown entity %s", ev.Entity.ID)
		return
	}
	if w.sel.Select(&resolved) {
		w.audit.Info("Well selected in another window: %s", resolved.DisplayName())
		w.Sync()
	}
}

func (w *Workspace) onFocus(f bus.Focus) {
	w.mu.Lock()
	if !f.Remote {
		w.activeWindow = f.WindowID
	}
	w.mu.Unlock()
	if f.Message != "" {
		w.audit.Info("%s", f.Message)
	}
}

// Focus marks viewID as the active window and notifies the host.
func (w *Workspace) Focus(viewID string) error {
	if _, ok := w.layout.Find(viewID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, viewID)
	}
	props := w.Props(viewID)
	name := "none"
	if props.Entity != nil {
		name = props.Entity.DisplayName()
	}
	f := bus.Focus{
		WindowID:   viewID,
		WindowType: string(props.Base),
		EntityName: name,
		Message:    fmt.Sprintf("%s window [%s] focused: %s", props.Base.Title(), viewID, name),
	}

	if w.bus != nil {
		w.bus.NotifyFocus(f)
		return nil
	}
	w.onFocus(f)
	return nil
}

// ActiveWindow returns the view that was focused last.
func (w *Workspace) ActiveWindow() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.activeWindow
}

func scopeLabel(s entity.Scope) string {
	if s.Name != "" {
		return s.Name
	}
	return s.Path
}
