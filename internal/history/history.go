// Package history persists an audit log of executed inference queries in
// an embedded SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded query: what was asked, with which algorithm, and
// the serialized result.
type Entry struct {
	ID         string            `json:"id"`
	Algorithm  string            `json:"algorithm"`
	Query      []string          `json:"query"`
	Evidence   map[string]string `json:"evidence"`
	Result     json.RawMessage   `json:"result"`
	DurationMs int64             `json:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SetResult serializes the result payload into the entry.
func (e *Entry) SetResult(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("history: marshal result: %w", err)
	}
	e.Result = data
	return nil
}

// Store is a SQLite-backed query log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path with WAL mode enabled and
// initializes the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS queries (
	id TEXT PRIMARY KEY,
	algorithm TEXT NOT NULL,
	query_vars TEXT NOT NULL,
	evidence JSON NOT NULL,
	result JSON NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queries_created ON queries(created_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Record appends one entry to the log.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	evidence, err := json.Marshal(e.Evidence)
	if err != nil {
		return fmt.Errorf("history: marshal evidence: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO queries (id, algorithm, query_vars, evidence, result, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Algorithm, strings.Join(e.Query, ","), string(evidence),
		string(e.Result), e.DurationMs, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("history: insert query %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, algorithm, query_vars, evidence, result, duration_ms, created_at
FROM queries ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			queryVars string
			evidence  string
			result    string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Algorithm, &queryVars, &evidence, &result, &e.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if queryVars != "" {
			e.Query = strings.Split(queryVars, ",")
		}
		if err := json.Unmarshal([]byte(evidence), &e.Evidence); err != nil {
			return nil, fmt.Errorf("history: unmarshal evidence for %s: %w", e.ID, err)
		}
		e.Result = json.RawMessage(result)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
