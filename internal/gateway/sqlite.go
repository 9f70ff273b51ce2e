package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/links"
)

// SQLite stores snapshots in a local sqlite database
type SQLite struct {
	db     *sql.DB
	dbPath string
}

var (
	_ Gateway     = (*SQLite)(nil)
	_ ActiveStore = (*SQLite)(nil)
)

// OpenSQLite opens (and creates if needed) the database at dbPath
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS layouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		project_path TEXT NOT NULL,
		layout_name TEXT NOT NULL DEFAULT 'default',
		layout_tree TEXT NOT NULL,
		visible_panels TEXT NOT NULL DEFAULT '[]',
		window_links TEXT NOT NULL DEFAULT '{}',
		window_titles TEXT NOT NULL DEFAULT '{}',
		saved_at DATETIME NOT NULL,
		UNIQUE(session_id, layout_name)
	);

	CREATE TABLE IF NOT EXISTS active_layouts (
		session_id TEXT PRIMARY KEY,
		layout_name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_layouts_session ON layouts(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLite) Save(ctx context.Context, snap Snapshot) error {
	snap, err := prepare(snap)
	if err != nil {
		return err
	}

	visible, err := json.Marshal(snap.VisiblePanels)
	if err != nil {
		return fmt.Errorf("failed to encode visible panels: %w", err)
	}
	windowLinks, err := json.Marshal(snap.WindowLinks)
	if err != nil {
		return fmt.Errorf("failed to encode window links: %w", err)
	}
	titles := []byte("{}")
	if snap.WindowTitles != nil {
		if titles, err = json.Marshal(snap.WindowTitles); err != nil {
			return fmt.Errorf("failed to encode window titles: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO layouts (session_id, project_path, layout_name, layout_tree, visible_panels, window_links, window_titles, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, layout_name) DO UPDATE SET
			project_path = excluded.project_path,
			layout_tree = excluded.layout_tree,
			visible_panels = excluded.visible_panels,
			window_links = excluded.window_links,
			window_titles = excluded.window_titles,
			saved_at = excluded.saved_at`,
		SessionID(snap.ScopeRef), entity.NormalizePath(snap.ScopeRef), snap.LayoutName,
		string(snap.LayoutTree), string(visible), string(windowLinks), string(titles),
		snap.SavedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save layout %q: %w", snap.LayoutName, err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, scopeRef, name string) (Snapshot, error) {
	name = LayoutName(name)
	var (
		projectPath, tree, visible, windowLinks, titles string
		savedAt                                          time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT project_path, layout_tree, visible_panels, window_links, window_titles, saved_at
		FROM layouts WHERE session_id = ? AND layout_name = ?`,
		SessionID(scopeRef), name,
	).Scan(&projectPath, &tree, &visible, &windowLinks, &titles, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load layout %q: %w", name, err)
	}

	snap := Snapshot{
		ScopeRef:   projectPath,
		LayoutName: name,
		LayoutTree: json.RawMessage(tree),
		SavedAt:    savedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(visible), &snap.VisiblePanels); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode visible panels: %w", err)
	}
	snap.WindowLinks = map[string]links.Record{}
	if err := json.Unmarshal([]byte(windowLinks), &snap.WindowLinks); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode window links: %w", err)
	}
	if titles != "" && titles != "{}" {
		if err := json.Unmarshal([]byte(titles), &snap.WindowTitles); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode window titles: %w", err)
		}
	}
	return snap, nil
}

func (s *SQLite) Delete(ctx context.Context, scopeRef, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM layouts WHERE session_id = ? AND layout_name = ?`,
		SessionID(scopeRef), LayoutName(name))
	if err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, scopeRef string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT layout_name, saved_at FROM layouts WHERE session_id = ? ORDER BY layout_name`,
		SessionID(scopeRef))
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.LayoutName, &sum.SavedAt); err != nil {
			return nil, err
		}
		sum.SavedAt = sum.SavedAt.UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLite) SetActive(ctx context.Context, scopeRef, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_layouts (session_id, layout_name) VALUES (?, ?)
		ON CONFLICT(session_id) DO UPDATE SET layout_name = excluded.layout_name`,
		SessionID(scopeRef), LayoutName(name))
	if err != nil {
		return fmt.Errorf("failed to store active layout: %w", err)
	}
	return nil
}

func (s *SQLite) Active(ctx context.Context, scopeRef string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT layout_name FROM active_layouts WHERE session_id = ?`,
		SessionID(scopeRef)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active layout: %w", err)
	}
	return name, nil
}
