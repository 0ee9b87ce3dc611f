// Package resource persists dashboard-like resources and answers resource
// configuration requests dispatched through the store.
package resource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/constants"
)

const defaultBusyTimeout = 5 * time.Second

// NotFoundError indicates a requested resource does not exist.
type NotFoundError struct {
	Type actions.ResourceType
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Type, e.ID)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Record is one stored resource.
type Record struct {
	Type      actions.ResourceType `json:"resourceType"`
	ID        string               `json:"pk"`
	Data      map[string]any       `json:"data"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Options describes parameters for opening a repository.
type Options struct {
	Path     string // Database file; ":memory:" keeps it in memory
	ReadOnly bool
}

// Repository stores resources in sqlite.
type Repository struct {
	db       *sql.DB
	path     string
	readOnly bool
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS resources (
		resource_type TEXT NOT NULL,
		pk TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (resource_type, pk)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_updated ON resources(resource_type, updated_at)`,
}

// Open opens (and creates when writable) the repository at opts.Path.
func Open(opts Options) (*Repository, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("resource: database path is required")
	}

	dsn := path
	memory := path == ":memory:"
	if !memory {
		if !opts.ReadOnly {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("resource: ensure database dir: %w", err)
			}
		}
		if opts.ReadOnly {
			dsn = fmt.Sprintf("file:%s?mode=ro", path)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("resource: open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), constants.Duration5Seconds)
	defer cancel()

	if err := applyPragmas(ctx, db, opts.ReadOnly || memory); err != nil {
		db.Close()
		return nil, err
	}
	if !opts.ReadOnly {
		if err := applySchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Repository{db: db, path: path, readOnly: opts.ReadOnly}, nil
}

// Close finalises the underlying database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Path returns the database location.
func (r *Repository) Path() string {
	return r.path
}

// Put inserts or replaces a resource.
func (r *Repository) Put(ctx context.Context, rt actions.ResourceType, id string, data map[string]any) error {
	if r.readOnly {
		return fmt.Errorf("resource: repository is read-only")
	}
	if strings.TrimSpace(string(rt)) == "" || strings.TrimSpace(id) == "" {
		return fmt.Errorf("resource: type and id are required")
	}
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("resource: encode %s %s: %w", rt, id, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO resources (resource_type, pk, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(resource_type, pk) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, string(rt), id, string(raw))
	if err != nil {
		return fmt.Errorf("resource: put %s %s: %w", rt, id, err)
	}
	return nil
}

// Get returns one resource or a NotFoundError.
func (r *Repository) Get(ctx context.Context, rt actions.ResourceType, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT data, updated_at FROM resources
		WHERE resource_type = ? AND pk = ?
	`, string(rt), id)

	var raw, updated string
	if err := row.Scan(&raw, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, NotFoundError{Type: rt, ID: id}
		}
		return Record{}, fmt.Errorf("resource: get %s %s: %w", rt, id, err)
	}
	return decodeRecord(rt, id, raw, updated)
}

// List returns the resources of one type, most recently updated first.
func (r *Repository) List(ctx context.Context, rt actions.ResourceType) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pk, data, updated_at FROM resources
		WHERE resource_type = ?
		ORDER BY updated_at DESC, pk
	`, string(rt))
	if err != nil {
		return nil, fmt.Errorf("resource: list %s: %w", rt, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var id, raw, updated string
		if err := rows.Scan(&id, &raw, &updated); err != nil {
			return nil, fmt.Errorf("resource: scan %s: %w", rt, err)
		}
		rec, err := decodeRecord(rt, id, raw, updated)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a resource. Deleting a missing resource returns a NotFoundError.
func (r *Repository) Delete(ctx context.Context, rt actions.ResourceType, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE resource_type = ? AND pk = ?`, string(rt), id)
	if err != nil {
		return fmt.Errorf("resource: delete %s %s: %w", rt, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Type: rt, ID: id}
	}
	return nil
}

func decodeRecord(rt actions.ResourceType, id, raw, updated string) (Record, error) {
	rec := Record{Type: rt, ID: id}
	if err := json.Unmarshal([]byte(raw), &rec.Data); err != nil {
		return Record{}, fmt.Errorf("resource: decode %s %s: %w", rt, id, err)
	}
	if ts, err := time.Parse(time.DateTime, updated); err == nil {
		rec.UpdatedAt = ts.UTC()
	}
	return rec, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, skipJournal bool) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
	}
	if !skipJournal {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("resource: apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("resource: begin schema transaction: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("resource: apply schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("resource: commit schema: %w", err)
	}
	return nil
}
