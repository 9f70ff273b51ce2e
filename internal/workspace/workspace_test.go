package workspace

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/wellspace/internal/activity"
	"github.com/codefionn/wellspace/internal/bus"
	"github.com/codefionn/wellspace/internal/dataservice"
	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/fence"
	"github.com/codefionn/wellspace/internal/gateway"
	"github.com/codefionn/wellspace/internal/layout"
	"github.com/codefionn/wellspace/internal/view"
)

var (
	proj  = entity.Scope{Name: "proj", Path: "/proj"}
	well1 = entity.Ref{ID: "w1", Name: "Well 1", Path: "/proj/w1"}
	well2 = entity.Ref{ID: "w2", Name: "Well 2", Path: "/proj/w2"}
	well3 = entity.Ref{ID: "w3", Name: "Well 3", Path: "/proj/w3"}
)

const browser = string(view.DataBrowser)

func newFake() *dataservice.Fake {
	f := dataservice.NewFake()
	f.AddEntities(proj.Path, well1, well2, well3)
	for _, w := range []entity.Ref{well1, well2, well3} {
		f.SetDatasets(w.ID, dataservice.Dataset{Name: "ds-" + w.ID, WellName: w.Name})
	}
	return f
}

func newWorkspace(t *testing.T, data dataservice.Service, gw gateway.Gateway) *Workspace {
	t.Helper()
	if gw == nil {
		gw = gateway.NewMemory()
	}
	w := New(Options{
		Gateway:      gw,
		Data:         data,
		Activity:     activity.New(0),
		FetchTimeout: 5 * time.Second,
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Close() })
	return w
}

func openProj(t *testing.T, w *Workspace) {
	t.Helper()
	require.NoError(t, w.OpenScope(context.Background(), proj))
	w.Wait()
}

func datasetNames(t *testing.T, w *Workspace, viewID string) []string {
	t.Helper()
	d, err := w.Data(viewID)
	require.NoError(t, err)
	var names []string
	for _, ds := range d.Datasets {
		names = append(names, ds.Name)
	}
	return names
}

func TestRapidSelectionAppliesOnlyLatest(t *testing.T) {
	data := newFake()
	w := newWorkspace(t, data, nil)
	openProj(t, w)

	release1 := data.Gate(well1.ID)
	release2 := data.Gate(well2.ID)

	require.NoError(t, w.SelectEntity(well1))
	require.NoError(t, w.SelectEntity(well2))
	require.NoError(t, w.SelectEntity(well3))

	require.Eventually(t, func() bool {
		d, _ := w.Data(browser)
		return d.Loaded
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ds-w3"}, datasetNames(t, w, browser))

	release2()
	release1()
	w.Wait()

	assert.Equal(t, []string{"ds-w3"}, datasetNames(t, w, browser))
	assert.Equal(t, 1, data.Calls(well1.ID))
	assert.Equal(t, 1, data.Calls(well2.ID))

	var discarded int
	for _, e := range w.Activity().Entries() {
		if strings.Contains(e.Message, "Discarded stale response") {
			discarded++
		}
	}
	assert.Equal(t, 2, discarded)
}

func TestMovedEntityFetchedAgainAfterDiscard(t *testing.T) {
	data := newFake()
	w := newWorkspace(t, data, nil)
	openProj(t, w)

	release := data.Gate(well1.ID)
	require.NoError(t, w.SelectEntity(well1))
	require.Eventually(t, func() bool { return data.Calls(well1.ID) == 1 },
		2*time.Second, 10*time.Millisecond)

	moved := well1
	moved.Path = "/proj/sub/w1"
	w.entities.Replace([]entity.Ref{moved, well2, well3})
	w.Sync()
	release()
	w.Wait()
	w.Sync()
	w.Wait()

	d, err := w.Data(browser)
	require.NoError(t, err)
	assert.True(t, d.Loaded)
	assert.False(t, d.Loading)
	assert.Equal(t, []string{"ds-w1"}, datasetNames(t, w, browser))
	assert.Equal(t, 2, data.Calls(well1.ID))
}

func TestRenamedScopeFetchedAgainAfterDiscard(t *testing.T) {
	data := newFake()
	w := newWorkspace(t, data, nil)
	openProj(t, w)

	release := data.Gate(well1.ID)
	require.NoError(t, w.SelectEntity(well1))
	require.Eventually(t, func() bool { return data.Calls(well1.ID) == 1 },
		2*time.Second, 10*time.Millisecond)

	renamed := entity.Scope{Name: "renamed", Path: proj.Path}
	require.NoError(t, w.OpenScope(context.Background(), renamed))
	release()
	w.Wait()
	w.Sync()
	w.Wait()

	require.NotNil(t, w.SelectedEntity())
	d, err := w.Data(browser)
	require.NoError(t, err)
	assert.True(t, d.Loaded)
	assert.Equal(t, []string{"ds-w1"}, datasetNames(t, w, browser))
	assert.Equal(t, 2, data.Calls(well1.ID))
}

func TestSelectionPublishedToOtherWindow(t *testing.T) {
	ctx := context.Background()
	net := bus.NewNetwork()
	busA := bus.New(bus.WithTransport(net.Endpoint()))
	busB := bus.New(bus.WithTransport(net.Endpoint()))
	require.NoError(t, busA.Start(ctx))
	require.NoError(t, busB.Start(ctx))
	t.Cleanup(func() {
		busA.Close(ctx)
		busB.Close(ctx)
	})

	data := newFake()
	host := New(Options{Data: data, Bus: busA, Activity: activity.New(0)})
	popup := New(Options{Data: data, Bus: busB, Activity: activity.New(0)})
	for _, w := range []*Workspace{host, popup} {
		require.NoError(t, w.Start(ctx))
		require.NoError(t, w.OpenScope(ctx, proj))
		defer w.Close()
	}

	require.NoError(t, host.SelectEntity(well2))

	require.Eventually(t, func() bool {
		sel := popup.SelectedEntity()
		return sel != nil && sel.ID == well2.ID
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		d, _ := popup.Data(browser)
		return d.Loaded
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ds-w2"}, datasetNames(t, popup, browser))
}

func TestRemoteSelectionFromOtherScopeIgnored(t *testing.T) {
	ctx := context.Background()
	net := bus.NewNetwork()
	busA := bus.New(bus.WithTransport(net.Endpoint()))
	busB := bus.New(bus.WithTransport(net.Endpoint()))
	require.NoError(t, busA.Start(ctx))
	require.NoError(t, busB.Start(ctx))
	t.Cleanup(func() {
		busA.Close(ctx)
		busB.Close(ctx)
	})

	other := entity.Scope{Name: "other", Path: "/other"}
	data := newFake()
	data.AddEntities(other.Path, entity.Ref{ID: "w1", Name: "Other 1", Path: "/other/w1"})

	a := New(Options{Data: data, Bus: busA})
	b := New(Options{Data: data, Bus: busB})
	defer a.Close()
	defer b.Close()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	require.NoError(t, a.OpenScope(ctx, other))
	require.NoError(t, b.OpenScope(ctx, proj))

	require.NoError(t, a.SelectEntity(entity.Ref{ID: "w1"}))

	assert.Never(t, func() bool {
		return b.SelectedEntity() != nil
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestAbsentLinkEntryFollowsSelection(t *testing.T) {
	w := newWorkspace(t, newFake(), nil)
	openProj(t, w)
	require.NoError(t, w.SelectEntity(well1))

	assert.True(t, w.IsLinked(browser))
	assert.Empty(t, w.Links())
	p := w.Props(browser)
	require.NotNil(t, p.Entity)
	assert.Equal(t, well1.ID, p.Entity.ID)
	assert.True(t, p.Linked)
}

func TestPinSurvivesSelectionAndRelinks(t *testing.T) {
	data := newFake()
	w := newWorkspace(t, data, nil)
	openProj(t, w)

	require.NoError(t, w.SelectEntity(well1))
	w.Wait()
	calls := data.Calls(well1.ID)

	require.NoError(t, w.ToggleLink(browser))
	assert.False(t, w.IsLinked(browser))
	assert.Equal(t, calls, data.Calls(well1.ID), "toggling must not fetch")

	require.NoError(t, w.SelectEntity(well2))
	w.Wait()
	p := w.Props(browser)
	require.NotNil(t, p.Entity)
	assert.Equal(t, well1.ID, p.Entity.ID)
	assert.Equal(t, []string{"ds-w1"}, datasetNames(t, w, browser))

	require.NoError(t, w.ToggleLink(browser))
	p = w.Props(browser)
	require.NotNil(t, p.Entity)
	assert.Equal(t, well2.ID, p.Entity.ID)
	assert.True(t, p.Linked)

	entries := w.Activity().Entries()
	var msgs []string
	for _, e := range entries {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, strings.Join(msgs, "\n"), "unlinked, pinned to Well 1")
}

func TestToggleLinkRejectsUnlinkableView(t *testing.T) {
	w := newWorkspace(t, newFake(), nil)
	assert.Error(t, w.ToggleLink(string(view.Wells)))
	assert.ErrorIs(t, w.ToggleLink("crossPlot_7"), ErrUnknownView)
}

func TestContainmentGate(t *testing.T) {
	tests := []struct {
		name      string
		scope     string
		wantCalls int
	}{
		{"sibling scope", "/a/c", 0},
		{"parent scope", "/a", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := entity.Ref{ID: "b", Name: "B", Path: "/a/b"}
			data := dataservice.NewFake()
			data.AddEntities(tt.scope, ref)
			data.SetDatasets(ref.ID, dataservice.Dataset{Name: "main"})

			w := newWorkspace(t, data, nil)
			require.NoError(t, w.OpenScope(context.Background(), entity.Scope{Path: tt.scope}))
			w.Wait()
			require.NoError(t, w.SelectEntity(ref))
			w.Wait()

			assert.Equal(t, tt.wantCalls, data.Calls(ref.ID))
			d, err := w.Data(browser)
			require.NoError(t, err)
			if tt.wantCalls == 0 {
				assert.ErrorIs(t, d.Empty, fence.ErrOutOfScope)
				assert.False(t, d.Loaded)
			} else {
				assert.True(t, d.Loaded)
			}
		})
	}
}

func TestNoSelectionRendersEmpty(t *testing.T) {
	data := newFake()
	w := newWorkspace(t, data, nil)
	openProj(t, w)

	require.NoError(t, w.Refresh(context.Background(), browser))
	d, err := w.Data(browser)
	require.NoError(t, err)
	assert.ErrorIs(t, d.Empty, fence.ErrNoEntity)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t, newFake(), nil)
	openProj(t, w)
	require.NoError(t, w.SelectEntity(well1))

	plot, err := w.OpenWindow(view.WellLogPlot)
	require.NoError(t, err)
	require.NoError(t, w.ToggleLink(plot))
	require.NoError(t, w.CloseView(string(view.Zonation)))

	treeBefore := w.Layout().Tree()
	visibleBefore := w.Visible()
	linksBefore := w.Links()

	require.NoError(t, w.Save(ctx, "L"))
	found, err := w.Load(ctx, "L")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, treeBefore, w.Layout().Tree())
	assert.Equal(t, visibleBefore, w.Visible())
	assert.Equal(t, linksBefore, w.Links())
	assert.Equal(t, "L", w.ActiveLayoutName(ctx))
	assert.Equal(t, "L", w.CurrentLayoutName())

	p := w.Props(plot)
	require.NotNil(t, p.Entity)
	assert.Equal(t, well1.ID, p.Entity.ID)
	assert.False(t, p.Linked)
	assert.Equal(t, "Well Log Plot #1", p.Title)
}

func TestLoadMissingLayoutLeavesStateAlone(t *testing.T) {
	w := newWorkspace(t, newFake(), nil)
	openProj(t, w)
	_, err := w.OpenWindow(view.CrossPlot)
	require.NoError(t, err)
	before := w.Layout().Tree()

	found, err := w.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, before, w.Layout().Tree())
}

type failingGateway struct {
	gateway.Gateway
}

func (failingGateway) Load(context.Context, string, string) (gateway.Snapshot, error) {
	return gateway.Snapshot{}, errors.New("connection refused")
}

func (failingGateway) Save(context.Context, gateway.Snapshot) error {
	return errors.New("connection refused")
}

func TestPersistenceFailureLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t, newFake(), failingGateway{Gateway: gateway.NewMemory()})
	openProj(t, w)

	id, err := w.OpenWindow(view.LogPlot)
	require.NoError(t, err)
	before := w.Layout().Tree()

	_, err = w.Load(ctx, "default")
	require.Error(t, err)
	assert.Equal(t, before, w.Layout().Tree())

	require.Error(t, w.Save(ctx, "default"))
	_, ok := w.Layout().Find(id)
	assert.True(t, ok)

	last, ok := w.Activity().Last()
	require.True(t, ok)
	assert.Equal(t, activity.KindError, last.Kind)
}

func TestUnresolvedPinStaysUnlinked(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()

	data := newFake()
	w := newWorkspace(t, data, gw)
	openProj(t, w)
	require.NoError(t, w.SelectEntity(well2))
	require.NoError(t, w.ToggleLink(browser))
	require.NoError(t, w.Save(ctx, gateway.DefaultLayoutName))
	w.Wait()

	// well2 is gone in the next session
	smaller := dataservice.NewFake()
	smaller.AddEntities(proj.Path, well1)
	smaller.SetDatasets(well1.ID, dataservice.Dataset{Name: "ds-w1"})

	w2 := newWorkspace(t, smaller, gw)
	openProj(t, w2)
	require.NoError(t, w2.SelectEntity(well1))
	w2.Wait()

	assert.False(t, w2.IsLinked(browser))
	p := w2.Props(browser)
	assert.Nil(t, p.Entity)
	assert.False(t, p.Linked)
	assert.Zero(t, smaller.Calls(well1.ID))

	smaller.AddEntities(proj.Path, well2)
	smaller.SetDatasets(well2.ID, dataservice.Dataset{Name: "ds-w2"})
	require.NoError(t, w2.ReloadEntities(ctx))
	w2.Wait()

	p = w2.Props(browser)
	require.NotNil(t, p.Entity)
	assert.Equal(t, well2.ID, p.Entity.ID)
	assert.Equal(t, []string{"ds-w2"}, datasetNames(t, w2, browser))
}

func TestResetKeepsOtherLayouts(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	w := newWorkspace(t, newFake(), gw)
	openProj(t, w)

	_, err := w.OpenWindow(view.WellLogPlot)
	require.NoError(t, err)
	require.NoError(t, w.Save(ctx, gateway.DefaultLayoutName))
	require.NoError(t, w.Save(ctx, "mine"))

	require.NoError(t, w.Reset(ctx))

	assert.Equal(t, layout.DefaultTree(), w.Layout().Tree())
	assert.Equal(t, layout.ResetVisible(), w.Visible())
	assert.Empty(t, w.Links())

	list, err := w.ListLayouts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mine", list[0].LayoutName)
}

func TestOpenWindowNumbering(t *testing.T) {
	w := newWorkspace(t, newFake(), nil)

	first, err := w.OpenWindow(view.WellLogPlot)
	require.NoError(t, err)
	second, err := w.OpenWindow(view.LogPlot)
	require.NoError(t, err)
	cross, err := w.OpenWindow(view.CrossPlot)
	require.NoError(t, err)

	assert.Equal(t, "wellLogPlot_1", first)
	assert.Equal(t, "logPlot_2", second)
	assert.Equal(t, "crossPlot_1", cross)
	assert.Equal(t, cross, w.ActiveWindow())

	tab, ok := w.Layout().Find(second)
	require.True(t, ok)
	assert.Equal(t, "Log Plot #2", tab.Title)
	assert.Contains(t, w.Visible(), string(view.CrossPlot))

	require.NoError(t, w.CloseView(cross))
	assert.NotContains(t, w.Visible(), string(view.CrossPlot))
	assert.Empty(t, w.ActiveWindow())
}

func TestTogglePanel(t *testing.T) {
	w := newWorkspace(t, newFake(), nil)

	open, err := w.TogglePanel(string(view.Settings))
	require.NoError(t, err)
	assert.True(t, open)
	assert.Contains(t, w.Visible(), string(view.Settings))

	open, err = w.TogglePanel(string(view.Settings))
	require.NoError(t, err)
	assert.False(t, open)
	assert.NotContains(t, w.Visible(), string(view.Settings))
}

func TestCrossPlotControl(t *testing.T) {
	w := newWorkspace(t, newFake(), nil)
	id, err := w.OpenWindow(view.CrossPlot)
	require.NoError(t, err)

	w.SetCrossPlotAxes(id, view.Axes{XLog: "GR", YLog: "RHOB"})
	require.NoError(t, w.OpenCrossPlotControl(id))

	p := w.Props(string(view.CrossPlotControl))
	assert.Equal(t, id, p.TargetWindow)
	assert.Equal(t, "GR", p.Axes.XLog)
	assert.Error(t, w.OpenCrossPlotControl(string(view.Wells)))
}

func TestDatasetDefaultsToFirst(t *testing.T) {
	data := newFake()
	data.SetDatasets(well1.ID, dataservice.Dataset{Name: "a"}, dataservice.Dataset{Name: "b"})
	w := newWorkspace(t, data, nil)
	openProj(t, w)

	require.NoError(t, w.SelectEntity(well1))
	w.Wait()
	assert.Equal(t, "a", w.Props(browser).Dataset)

	w.SelectDataset(well1.ID, "b")
	assert.Equal(t, "b", w.Props(browser).Dataset)
}

func TestFocusRecordsActivity(t *testing.T) {
	w := newWorkspace(t, newFake(), nil)
	openProj(t, w)
	require.NoError(t, w.SelectEntity(well1))

	require.NoError(t, w.Focus(browser))
	assert.Equal(t, browser, w.ActiveWindow())

	last, ok := w.Activity().Last()
	require.True(t, ok)
	assert.Equal(t, "Data Browser window [dataBrowser] focused: Well 1", last.Message)

	assert.ErrorIs(t, w.Focus("crossPlot_9"), ErrUnknownView)
}

func TestScopeSwitchClearsForeignSelection(t *testing.T) {
	other := entity.Scope{Name: "other", Path: "/other"}
	data := newFake()
	data.AddEntities(other.Path, entity.Ref{ID: "o1", Name: "O1", Path: "/other/o1"})
	w := newWorkspace(t, data, nil)
	openProj(t, w)
	require.NoError(t, w.SelectEntity(well1))

	require.NoError(t, w.OpenScope(context.Background(), other))
	assert.Nil(t, w.SelectedEntity())
	assert.Len(t, w.Entities(), 1)
	assert.ErrorIs(t, w.SelectEntity(well1), ErrUnknownEntity)
}

func TestOperationsNeedScope(t *testing.T) {
	w := newWorkspace(t, newFake(), nil)
	ctx := context.Background()
	assert.ErrorIs(t, w.Save(ctx, "x"), ErrNoScope)
	_, err := w.Load(ctx, "x")
	assert.ErrorIs(t, err, ErrNoScope)
	_, err = w.ListLayouts(ctx)
	assert.ErrorIs(t, err, ErrNoScope)
}

func TestScopeChangeHook(t *testing.T) {
	var joined []string
	w := New(Options{
		Gateway:  gateway.NewMemory(),
		Data:     newFake(),
		Activity: activity.New(0),
		OnScopeChange: func(_ context.Context, s entity.Scope) {
			joined = append(joined, s.Path)
		},
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Close() })

	openProj(t, w)
	openProj(t, w)
	require.NoError(t, w.OpenScope(context.Background(), entity.Scope{Path: "/other"}))
	w.Wait()

	assert.Equal(t, []string{"/proj", "/other"}, joined)
}
