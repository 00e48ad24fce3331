// Package registry provides the SQLite-backed source selection store.
//
// The registry owns exactly one piece of state: which named sources are
// selected for retrieval. It does not validate that a name exists on disk or
// in the vector index; detecting divergence is the reconciliation engine's
// job.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/tiwaz/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS selected_sources (
	name        TEXT PRIMARY KEY,
	selected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Source is a named unit of knowledge joined with its derived vector count.
type Source struct {
	Name        string `json:"name"`
	Selected    bool   `json:"selected"`
	VectorCount int    `json:"vector_count"`
}

// DB wraps a sql.DB with selection-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %v: %w", err, apperr.ErrStorage)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %v: %w", err, apperr.ErrStorage)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %v: %w", err, apperr.ErrStorage)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Selected returns the sorted names of all selected sources.
func (db *DB) Selected(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM selected_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("registry: selected: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("registry: scan: %v: %w", err, apperr.ErrStorage)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SetSelected replaces the entire selection set in one transaction.
func (db *DB) SetSelected(ctx context.Context, names []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry: begin tx: %v: %w", err, apperr.ErrStorage)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM selected_sources`); err != nil {
		return fmt.Errorf("registry: clear selection: %v: %w", err, apperr.ErrStorage)
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO selected_sources (name, selected_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("registry: prepare insert: %v: %w", err, apperr.ErrStorage)
	}
	defer stmt.Close()

	now := time.Now()
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("registry: empty source name: %w", apperr.ErrValidation)
		}
		if _, err := stmt.Exec(n, now); err != nil {
			return fmt.Errorf("registry: insert %s: %v: %w", n, err, apperr.ErrStorage)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry: commit: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

// Select adds a single source to the selection set, keeping existing entries.
func (db *DB) Select(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("registry: empty source name: %w", apperr.ErrValidation)
	}
	if _, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO selected_sources (name, selected_at) VALUES (?, ?)`, name, time.Now()); err != nil {
		return fmt.Errorf("registry: select %s: %v: %w", name, err, apperr.ErrStorage)
	}
	return nil
}

// Deselect removes a single source from the selection set. Removing a name
// that is not selected is a no-op.
func (db *DB) Deselect(ctx context.Context, name string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM selected_sources WHERE name = ?`, name); err != nil {
		return fmt.Errorf("registry: deselect %s: %v: %w", name, err, apperr.ErrStorage)
	}
	return nil
}

// ListAll joins every name known to either store view (selection set or the
// supplied vector counts) into Source records, sorted by name.
func (db *DB) ListAll(ctx context.Context, counts map[string]int) ([]Source, error) {
	selected, err := db.Selected(ctx)
	if err != nil {
		return nil, err
	}
	sel := make(map[string]struct{}, len(selected))
	for _, n := range selected {
		sel[n] = struct{}{}
	}

	names := make(map[string]struct{}, len(sel)+len(counts))
	for n := range sel {
		names[n] = struct{}{}
	}
	for n := range counts {
		names[n] = struct{}{}
	}

	out := make([]Source, 0, len(names))
	for n := range names {
		_, isSel := sel[n]
		out = append(out, Source{Name: n, Selected: isSel, VectorCount: counts[n]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
