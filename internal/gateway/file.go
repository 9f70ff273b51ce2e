package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/wellspace/internal/logger"
)

const (
	layoutExt  = ".json"
	activeFile = "_active"
)

// ChangeEvent reports a snapshot file written or removed by someone else.
type ChangeEvent struct {
	Session    string
	LayoutName string
	Removed    bool
}

// File stores one JSON file per snapshot under dir/<session>/<name>.json.
type File struct {
	dir string
	mu  sync.Mutex
}

var (
	_ Gateway     = (*File)(nil)
	_ ActiveStore = (*File)(nil)
)

// OpenFile uses dir as the snapshot root, creating it if needed.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create layout directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the snapshot root.
func (f *File) Dir() string { return f.dir }

func (f *File) sessionDir(scopeRef string) string {
	return filepath.Join(f.dir, SessionID(scopeRef))
}

func (f *File) path(scopeRef, name string) string {
	return filepath.Join(f.sessionDir(scopeRef), url.PathEscape(LayoutName(name))+layoutExt)
}

func (f *File) Save(_ context.Context, snap Snapshot) error {
	snap, err := prepare(snap)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(f.sessionDir(snap.ScopeRef), 0755); err != nil {
		return fmt.Errorf("failed to create layout directory: %w", err)
	}
	return writeAtomic(f.path(snap.ScopeRef, snap.LayoutName), data)
}

// writeAtomic writes through a temp file so watchers never see a partial file
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write layout: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write layout: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write layout: %w", err)
	}
	return nil
}

func (f *File) Load(_ context.Context, scopeRef, name string) (Snapshot, error) {
	data, err := os.ReadFile(f.path(scopeRef, name))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read layout: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode layout %q: %w", LayoutName(name), err)
	}
	return snap, nil
}

func (f *File) Delete(_ context.Context, scopeRef, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(scopeRef, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	return nil
}

func (f *File) List(ctx context.Context, scopeRef string) ([]Summary, error) {
	entries, err := os.ReadDir(f.sessionDir(scopeRef))
	if errors.Is(err, os.ErrNotExist) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}

	out := []Summary{}
	for _, e := range entries {
		name, ok := layoutNameFromFile(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		snap, err := f.Load(ctx, scopeRef, name)
		if err != nil {
			logger.Warn("skipping unreadable layout file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, Summary{LayoutName: snap.LayoutName, SavedAt: snap.SavedAt})
	}
	return sortSummaries(out), nil
}

func layoutNameFromFile(base string) (string, bool) {
	if !strings.HasSuffix(base, layoutExt) || strings.HasPrefix(base, ".") {
		return "", false
	}
	name, err := url.PathUnescape(strings.TrimSuffix(base, layoutExt))
	if err != nil {
		return "", false
	}
	return name, true
}

func (f *File) SetActive(_ context.Context, scopeRef, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(f.sessionDir(scopeRef), 0755); err != nil {
		return fmt.Errorf("failed to create layout directory: %w", err)
	}
	return writeAtomic(filepath.Join(f.sessionDir(scopeRef), activeFile), []byte(LayoutName(name)))
}

func (f *File) Active(_ context.Context, scopeRef string) (string, error) {
	data, err := os.ReadFile(filepath.Join(f.sessionDir(scopeRef), activeFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active layout: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *File) Close() error { return nil }

// Watch reports snapshot files created, rewritten or removed under the root
// until ctx is done. Session directories created later are picked up.
func (f *File) Watch(ctx context.Context, fn func(ChangeEvent)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}
	entries, _ := os.ReadDir(f.dir)
	for _, e := range entries {
		if e.IsDir() {
			if err := watcher.Add(filepath.Join(f.dir, e.Name())); err != nil {
				logger.Warn("failed to watch %s: %v", e.Name(), err)
			}
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				f.handleEvent(watcher, event, fn)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("layout watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (f *File) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, fn func(ChangeEvent)) {
	dir := filepath.Dir(event.Name)
	if filepath.Clean(dir) == filepath.Clean(f.dir) {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := watcher.Add(event.Name); err != nil {
					logger.Warn("failed to watch %s: %v", event.Name, err)
					return
				}
				// files written before the watch was added
				entries, _ := os.ReadDir(event.Name)
				for _, e := range entries {
					if name, ok := layoutNameFromFile(e.Name()); ok && !e.IsDir() {
						fn(ChangeEvent{Session: filepath.Base(event.Name), LayoutName: name})
					}
				}
			}
		}
		return
	}

	name, ok := layoutNameFromFile(filepath.Base(event.Name))
	if !ok {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		fn(ChangeEvent{Session: filepath.Base(dir), LayoutName: name, Removed: true})
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		fn(ChangeEvent{Session: filepath.Base(dir), LayoutName: name})
	}
}
