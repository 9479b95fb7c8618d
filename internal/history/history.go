// SPDX-License-Identifier: MIT

// Package history journals switch and chaos operations in SQLite so an
// operator can reconstruct when traffic moved and why. Journaling is
// best effort: a failed journal write never fails the operation itself.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// Event kinds recorded in the journal.
const (
	KindSwitch      = "switch"
	KindChaosInduce = "chaos.induce"
	KindChaosHeal   = "chaos.heal"
)

// Record is one journalled operation.
type Record struct {
	ID          int64     `json:"id"`
	OperationID string    `json:"operation_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Kind        string    `json:"kind"`
	FromPool    string    `json:"from_pool,omitempty"`
	ToPool      string    `json:"to_pool,omitempty"`
	Changed     bool      `json:"changed"`
	Result      string    `json:"result"`
	Detail      string    `json:"detail,omitempty"`
}

// Store persists the journal.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_id TEXT NOT NULL,
	occurred_at  TEXT NOT NULL,
	kind         TEXT NOT NULL,
	from_pool    TEXT NOT NULL DEFAULT '',
	to_pool      TEXT NOT NULL DEFAULT '',
	changed      INTEGER NOT NULL DEFAULT 0,
	result       TEXT NOT NULL,
	detail       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at);
`

// Open initialises the journal at dbPath. WAL and busy_timeout are set
// through the DSN so they apply to every connection in the pool.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dbPath, err)
	}
	// Single writer keeps SQLite happy without lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append journals one record.
func (s *Store) Append(ctx context.Context, r Record) error {
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (operation_id, occurred_at, kind, from_pool, to_pool, changed, result, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OperationID, r.OccurredAt.UTC().Format(time.RFC3339Nano), r.Kind,
		r.FromPool, r.ToPool, boolToInt(r.Changed), r.Result, r.Detail)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation_id, occurred_at, kind, from_pool, to_pool, changed, result, detail
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Record
	for rows.Next() {
		var r Record
		var occurred string
		var changed int
		if err := rows.Scan(&r.ID, &r.OperationID, &occurred, &r.Kind, &r.FromPool, &r.ToPool, &changed, &r.Result, &r.Detail); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, occurred); err == nil {
			r.OccurredAt = ts
		}
		r.Changed = changed != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
