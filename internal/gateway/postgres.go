package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/links"
)

const defaultPostgresDSN = "postgres://localhost/wellspace?sslmode=disable"

// Postgres stores snapshots in a shared Postgres database, one row per
// (session, layout name).
type Postgres struct {
	db *sql.DB
}

var (
	_ Gateway     = (*Postgres)(nil)
	_ ActiveStore = (*Postgres)(nil)
)

// OpenPostgres connects to dsn (a default local DSN when empty) and creates
// the tables if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS layouts (
			session_id TEXT NOT NULL,
			project_path TEXT NOT NULL,
			layout_name TEXT NOT NULL DEFAULT 'default',
			layout_tree JSONB NOT NULL,
			visible_panels JSONB NOT NULL DEFAULT '[]',
			window_links JSONB NOT NULL DEFAULT '{}',
			window_titles JSONB NOT NULL DEFAULT '{}',
			saved_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, layout_name)
		)`,
		`CREATE TABLE IF NOT EXISTS active_layouts (
			session_id TEXT PRIMARY KEY,
			layout_name TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure layout tables: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Save(ctx context.Context, snap Snapshot) error {
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

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO layouts (session_id, project_path, layout_name, layout_tree, visible_panels, window_links, window_titles, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, layout_name) DO UPDATE SET
			project_path = EXCLUDED.project_path,
			layout_tree = EXCLUDED.layout_tree,
			visible_panels = EXCLUDED.visible_panels,
			window_links = EXCLUDED.window_links,
			window_titles = EXCLUDED.window_titles,
			saved_at = EXCLUDED.saved_at`,
		SessionID(snap.ScopeRef), entity.NormalizePath(snap.ScopeRef), snap.LayoutName,
		string(snap.LayoutTree), string(visible), string(windowLinks), string(titles),
		snap.SavedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save layout %q: %w", snap.LayoutName, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, scopeRef, name string) (Snapshot, error) {
	name = LayoutName(name)
	var (
		projectPath                        string
		tree, visible, windowLinks, titles []byte
		savedAt                            time.Time
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT project_path, layout_tree, visible_panels, window_links, window_titles, saved_at
		FROM layouts WHERE session_id = $1 AND layout_name = $2`,
		SessionID(scopeRef), name,
	).Scan(&projectPath, &tree, &visible, &windowLinks, &titles, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load layout %q: %w", name, err)
	}

	snap := Snapshot{
		ScopeRef:    projectPath,
		LayoutName:  name,
		LayoutTree:  json.RawMessage(tree),
		SavedAt:     savedAt.UTC(),
		WindowLinks: map[string]links.Record{},
	}
	if err := json.Unmarshal(visible, &snap.VisiblePanels); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode visible panels: %w", err)
	}
	if err := json.Unmarshal(windowLinks, &snap.WindowLinks); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode window links: %w", err)
	}
	if len(titles) > 0 && string(titles) != "{}" {
		if err := json.Unmarshal(titles, &snap.WindowTitles); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode window titles: %w", err)
		}
	}
	return snap, nil
}

func (p *Postgres) Delete(ctx context.Context, scopeRef, name string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM layouts WHERE session_id = $1 AND layout_name = $2`,
		SessionID(scopeRef), LayoutName(name))
	if err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, scopeRef string) ([]Summary, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT layout_name, saved_at FROM layouts WHERE session_id = $1 ORDER BY layout_name`,
		SessionID(scopeRef))
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (p *Postgres) SetActive(ctx context.Context, scopeRef, name string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO active_layouts (session_id, layout_name) VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET layout_name = EXCLUDED.layout_name`,
		SessionID(scopeRef), LayoutName(name))
	if err != nil {
		return fmt.Errorf("failed to store active layout: %w", err)
	}
	return nil
}

func (p *Postgres) Active(ctx context.Context, scopeRef string) (string, error) {
	var name string
	err := p.db.QueryRowContext(ctx,
		`SELECT layout_name FROM active_layouts WHERE session_id = $1`,
		SessionID(scopeRef)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active layout: %w", err)
	}
	return name, nil
}
