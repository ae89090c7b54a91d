// Package catalog keeps a local history of runs in a small SQLite
// database under ~/.arkhive. It is advisory only: backups never depend
// on it, it exists for the history command and for debugging.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Record struct {
	ID         string
	Operation  string // backup, restore, verify
	Date       string
	RemotePath string
	SizeBytes  int64
	Duration   time.Duration
	Status     string // success, error
	Error      string
	StartedAt  time.Time
}

type Catalog struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	operation   TEXT NOT NULL,
	date        TEXT NOT NULL,
	remote_path TEXT,
	size_bytes  INTEGER,
	duration_ms INTEGER,
	status      TEXT NOT NULL,
	error       TEXT,
	started_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// DefaultPath returns ~/.arkhive/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".arkhive", "history.db"), nil
}

// Open creates the database and schema if needed. An empty path means
// the default location.
func Open(path string) (*Catalog, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize run catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Add(ctx context.Context, rec Record) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, operation, date, remote_path, size_bytes, duration_ms, status, error, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Operation, rec.Date, rec.RemotePath, rec.SizeBytes,
		rec.Duration.Milliseconds(), rec.Status, rec.Error, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (c *Catalog) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, operation, date, remote_path, size_bytes, duration_ms, status, error, started_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run catalog: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var durationMs int64
		if err := rows.Scan(&rec.ID, &rec.Operation, &rec.Date, &rec.RemotePath,
			&rec.SizeBytes, &durationMs, &rec.Status, &rec.Error, &rec.StartedAt); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
