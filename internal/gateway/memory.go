package gateway

import (
	"context"
	"sync"
)

type memKey struct {
	session string
	name    string
}

// Memory keeps snapshots in process memory.
type Memory struct {
	mu     sync.RWMutex
	snaps  map[memKey]Snapshot
	active map[string]string
}

var (
	_ Gateway     = (*Memory)(nil)
	_ ActiveStore = (*Memory)(nil)
)

// NewMemory creates an empty in-memory gateway
func NewMemory() *Memory {
	return &Memory{
		snaps:  make(map[memKey]Snapshot),
		active: make(map[string]string),
	}
}

func (m *Memory) Save(_ context.Context, snap Snapshot) error {
	snap, err := prepare(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.snaps[memKey{SessionID(snap.ScopeRef), snap.LayoutName}] = cloneSnapshot(snap)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, scopeRef, name string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[memKey{SessionID(scopeRef), LayoutName(name)}]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

func (m *Memory) Delete(_ context.Context, scopeRef, name string) error {
	m.mu.Lock()
	delete(m.snaps, memKey{SessionID(scopeRef), LayoutName(name)})
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, scopeRef string) ([]Summary, error) {
	session := SessionID(scopeRef)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Summary{}
	for k, s := range m.snaps {
		if k.session == session {
			out = append(out, Summary{LayoutName: s.LayoutName, SavedAt: s.SavedAt})
		}
	}
	return sortSummaries(out), nil
}

func (m *Memory) SetActive(_ context.Context, scopeRef, name string) error {
	m.mu.Lock()
	m.active[SessionID(scopeRef)] = LayoutName(name)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Active(_ context.Context, scopeRef string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[SessionID(scopeRef)], nil
}

func (m *Memory) Close() error { return nil }
