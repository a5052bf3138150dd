package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executions (
  id             TEXT PRIMARY KEY,
  command        TEXT NOT NULL,
  status         TEXT NOT NULL DEFAULT 'pending',
  repository_id  INTEGER NOT NULL,
  head_owner     TEXT NOT NULL,
  head_repo      TEXT NOT NULL,
  head_branch    TEXT NOT NULL,
  head_sha       TEXT NOT NULL,
  base_owner     TEXT NOT NULL,
  base_repo      TEXT NOT NULL,
  pr_number      INTEGER,
  args           JSON,
  triggered_by   TEXT NOT NULL,
  trigger_source TEXT NOT NULL,
  result         JSON,
  created_at     TEXT NOT NULL,
  completed_at   TEXT
);`,
		`CREATE TABLE IF NOT EXISTS exchange_records (
  id         TEXT PRIMARY KEY,
  value      JSON NOT NULL,
  expires_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS executions_status_idx ON executions(status);`,
		`CREATE INDEX IF NOT EXISTS executions_repository_id_idx ON executions(repository_id);`,
		`CREATE INDEX IF NOT EXISTS executions_created_at_idx ON executions(created_at);`,
		`CREATE INDEX IF NOT EXISTS exchange_records_expires_at_idx ON exchange_records(expires_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
