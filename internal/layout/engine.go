package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateTab is returned when a tab id is already present.
var ErrDuplicateTab = errors.New("tab already in layout")

// Engine is the docking layout contract the workspace relies on.
type Engine interface {
	Tree() Tree
	Replace(Tree)
	Marshal() (json.RawMessage, error)
	Unmarshal(json.RawMessage) error
	Dock(Tab) error
	Float(Tab, Geometry) error
	Remove(id string) bool
	Find(id string) (Tab, bool)
	TabIDs() []string
	SetTitle(id, title string) bool
	Titles() map[string]string
}

// Memory is an in-process Engine.
type Memory struct {
	mu   sync.RWMutex
	tree Tree
}

var _ Engine = (*Memory)(nil)

// NewMemory starts from tree.
func NewMemory(tree Tree) *Memory {
	m := &Memory{}
	m.Replace(tree)
	return m
}

// Tree returns a copy of the current arrangement.
func (m *Memory) Tree() Tree {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Clone()
}

// Replace swaps the whole arrangement.
func (m *Memory) Replace(t Tree) {
	t = t.Clone()
	if t.DockBox == nil {
		t.DockBox = &Box{Mode: Horizontal}
	}
	m.mu.Lock()
	m.tree = t
	m.mu.Unlock()
}

// Marshal serializes the tree.
func (m *Memory) Marshal() (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := json.Marshal(m.tree)
	if err != nil {
		return nil, fmt.Errorf("marshal layout: %w", err)
	}
	return data, nil
}

// Unmarshal parses data and replaces the tree. On error the current tree is
// left untouched.
func (m *Memory) Unmarshal(data json.RawMessage) error {
	t, err := Parse(data)
	if err != nil {
		return err
	}
	m.Replace(t)
	return nil
}

// Parse decodes a serialized tree.
func Parse(data json.RawMessage) (Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return Tree{}, fmt.Errorf("parse layout: %w", err)
	}
	if t.DockBox == nil {
		return Tree{}, errors.New("parse layout: missing dockbox")
	}
	return t, nil
}

// Dock adds tab as a new panel at the end of the dock box.
func (m *Memory) Dock(t Tab) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.has(t.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateTab, t.ID)
	}
	m.tree.DockBox.Children = append(m.tree.DockBox.Children, &Box{Tabs: []Tab{t}, ActiveID: t.ID})
	return nil
}

// Float adds tab as a floating panel.
func (m *Memory) Float(t Tab, g Geometry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.has(t.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateTab, t.ID)
	}
	if m.tree.FloatBox == nil {
		m.tree.FloatBox = &Box{Mode: FloatMode}
	}
	m.tree.FloatBox.Children = append(m.tree.FloatBox.Children, &Box{
		Tabs:     []Tab{t},
		ActiveID: t.ID,
		X:        g.X, Y: g.Y, W: g.W, H: g.H, Z: g.Z,
	})
	return nil
}

// Remove closes the tab and drops panels left empty.
func (m *Memory) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := false
	m.tree.walk(func(owner *Box, i int) bool {
		if owner.Tabs[i].ID != id {
			return true
		}
		owner.Tabs = append(owner.Tabs[:i], owner.Tabs[i+1:]...)
		if owner.ActiveID == id {
			owner.ActiveID = ""
			if len(owner.Tabs) > 0 {
				owner.ActiveID = owner.Tabs[0].ID
			}
		}
		removed = true
		return false
	})
	if !removed {
		return false
	}

	m.tree.DockBox.prune()
	m.tree.FloatBox.prune()
	if m.tree.FloatBox != nil && len(m.tree.FloatBox.Children) == 0 {
		m.tree.FloatBox = nil
	}
	if m.tree.MaxBox != nil {
		m.tree.MaxBox.prune()
		if len(m.tree.MaxBox.Children) == 0 && len(m.tree.MaxBox.Tabs) == 0 {
			m.tree.MaxBox = nil
		}
	}
	return true
}

// Find looks a tab up by id.
func (m *Memory) Find(id string) (Tab, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found Tab
	ok := false
	m.tree.walk(func(owner *Box, i int) bool {
		if owner.Tabs[i].ID == id {
			found, ok = owner.Tabs[i], true
			return false
		}
		return true
	})
	return found, ok
}

func (m *Memory) has(id string) bool {
	ok := false
	m.tree.walk(func(owner *Box, i int) bool {
		if owner.Tabs[i].ID == id {
			ok = true
			return false
		}
		return true
	})
	return ok
}

// TabIDs lists every tab id, sorted.
func (m *Memory) TabIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	m.tree.walk(func(owner *Box, i int) bool {
		ids = append(ids, owner.Tabs[i].ID)
		return true
	})
	sort.Strings(ids)
	return ids
}

// SetTitle renames a tab.
func (m *Memory) SetTitle(id, title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok := false
	m.tree.walk(func(owner *Box, i int) bool {
		if owner.Tabs[i].ID == id {
			owner.Tabs[i].Title = title
			ok = true
			return false
		}
		return true
	})
	return ok
}

// Titles maps every tab id to its header.
func (m *Memory) Titles() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	m.tree.walk(func(owner *Box, i int) bool {
		out[owner.Tabs[i].ID] = owner.Tabs[i].Title
		return true
	})
	return out
}
