// Package layout holds the dock/float arrangement of views. The tree format
// mirrors the docking engine the workspace is rendered with: a dock box of
// nested horizontal/vertical boxes whose leaves are tab panels, plus a float
// box of positioned panels and an optional maximized panel.
package layout

import (
	"github.com/codefionn/wellspace/internal/view"
)

// Box modes.
const (
	Horizontal = "horizontal"
	Vertical   = "vertical"
	FloatMode  = "float"
)

// Tab is one view inside a panel.
type Tab struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Closable bool   `json:"closable,omitempty"`
	Group    string `json:"group,omitempty"`
}

// Box is either a container (Children) or a tab panel (Tabs). Floating
// panels carry their geometry.
type Box struct {
	Mode     string `json:"mode,omitempty"`
	Size     int    `json:"size,omitempty"`
	Children []*Box `json:"children,omitempty"`
	Tabs     []Tab  `json:"tabs,omitempty"`
	ActiveID string `json:"activeId,omitempty"`

	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`
	W int `json:"w,omitempty"`
	H int `json:"h,omitempty"`
	Z int `json:"z,omitempty"`
}

// Tree is the whole arrangement.
type Tree struct {
	DockBox  *Box `json:"dockbox"`
	FloatBox *Box `json:"floatbox,omitempty"`
	MaxBox   *Box `json:"maxbox,omitempty"`
}

// Geometry places a floating panel.
type Geometry struct {
	X, Y, W, H, Z int
}

// StaggeredGeometry is the placement of the index-th floating window: each
// window is shifted 30 units from the previous one.
func StaggeredGeometry(index int) Geometry {
	if index < 1 {
		index = 1
	}
	offset := (index - 1) * 30
	return Geometry{X: 100 + offset, Y: 100 + offset, W: 800, H: 600, Z: index}
}

func panel(tabs ...Tab) *Box {
	return &Box{Tabs: tabs}
}

func tab(b view.BaseType, closable bool) Tab {
	return Tab{ID: string(b), Title: b.Title(), Closable: closable, Group: view.DefaultGroup}
}

// DefaultTree is the arrangement a fresh workspace starts with.
func DefaultTree() Tree {
	return Tree{
		DockBox: &Box{
			Mode: Horizontal,
			Children: []*Box{
				{Size: 220, Mode: Vertical, Children: []*Box{
					panel(tab(view.Wells, true)),
					panel(tab(view.Zonation, true)),
				}},
				{Size: 700, Mode: Vertical, Children: []*Box{
					panel(tab(view.EmptyDock, false)),
					panel(tab(view.Feedback, true)),
				}},
				{Size: 300, Mode: Vertical, Children: []*Box{
					panel(tab(view.DataBrowser, true)),
					panel(tab(view.CLI, true)),
				}},
			},
		},
	}
}

// DefaultVisible is the visible panel set of a fresh workspace.
func DefaultVisible() []string {
	return []string{
		string(view.Wells), string(view.Zonation), string(view.EmptyDock),
		string(view.DataBrowser), string(view.Feedback), string(view.CLI),
	}
}

// ResetVisible is the visible panel set restored by a layout reset.
func ResetVisible() []string {
	return []string{
		string(view.Wells), string(view.Zonation),
		string(view.DataBrowser), string(view.Feedback), string(view.CLI),
	}
}

func (b *Box) clone() *Box {
	if b == nil {
		return nil
	}
	c := *b
	if b.Tabs != nil {
		c.Tabs = append([]Tab(nil), b.Tabs...)
	}
	if b.Children != nil {
		c.Children = make([]*Box, len(b.Children))
		for i, ch := range b.Children {
			c.Children[i] = ch.clone()
		}
	}
	return &c
}

// Clone deep-copies the tree.
func (t Tree) Clone() Tree {
	return Tree{DockBox: t.DockBox.clone(), FloatBox: t.FloatBox.clone(), MaxBox: t.MaxBox.clone()}
}

func (b *Box) walk(fn func(owner *Box, i int) bool) bool {
	if b == nil {
		return true
	}
	for i := range b.Tabs {
		if !fn(b, i) {
			return false
		}
	}
	for _, ch := range b.Children {
		if !ch.walk(fn) {
			return false
		}
	}
	return true
}

func (t *Tree) walk(fn func(owner *Box, i int) bool) {
	for _, b := range []*Box{t.DockBox, t.FloatBox, t.MaxBox} {
		if !b.walk(fn) {
			return
		}
	}
}

// prune removes empty panels and containers below b, keeping b itself.
func (b *Box) prune() {
	if b == nil {
		return
	}
	kept := b.Children[:0]
	for _, ch := range b.Children {
		ch.prune()
		if len(ch.Tabs) == 0 && len(ch.Children) == 0 {
			continue
		}
		kept = append(kept, ch)
	}
	b.Children = kept
	if len(b.Children) == 0 {
		b.Children = nil
	}
}
