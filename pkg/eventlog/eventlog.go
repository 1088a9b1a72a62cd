// Package eventlog records command and telemetry lifecycle events in a
// SQLite database and answers filtered queries over them. It is an audit
// trail for operators, not runtime state: the dispatch queue and the
// unit registry never read from it.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"fleetsim/pkg/fleet"
)

// Event kinds recorded by the store.
const (
	KindCommandSent      = "command_sent"
	KindCommandCompleted = "command_completed"
	KindCommandFailed    = "command_failed"
	KindTelemetry        = "telemetry"
)

// schemaDDL creates the event table. Executed on every Open; idempotent.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    kind TEXT NOT NULL,
    unit_id TEXT,
    command_id TEXT,
    detail TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS events_unit ON events(unit_id);
CREATE INDEX IF NOT EXISTS events_kind ON events(kind);
`

// Event is one recorded row.
type Event struct {
	ID        int64
	Kind      string
	UnitID    string
	CommandID string
	Detail    string
	CreatedAt time.Time
}

// QueryOpts filters Query results.
type QueryOpts struct {
	// UnitID restricts events to one unit when non-empty.
	UnitID string

	// Kind restricts events to one kind when non-empty.
	Kind string

	// After includes only events created at or after this time.
	After *time.Time

	// Limit caps the number of results (0 = no limit). Results are
	// newest first.
	Limit int
}

// Store is an open event log. Safe for concurrent use; database/sql
// serializes access to the underlying connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens the event log at path with WAL journaling and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init event log schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. Safe to call multiple times.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts one event.
func (s *Store) Record(ctx context.Context, kind string, unitID fleet.UnitID, commandID, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (kind, unit_id, command_id, detail) VALUES (?, ?, ?, ?)`,
		kind, string(unitID), commandID, detail,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Query returns events matching opts, newest first.
func (s *Store) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt string
		var unitID, commandID, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &unitID, &commandID, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.UnitID = unitID.String
		e.CommandID = commandID.String
		e.Detail = detail.String
		if ts, err := time.Parse(time.DateTime, createdAt); err == nil {
			e.CreatedAt = ts.UTC()
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// buildQuery assembles the filtered SELECT for opts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conds []string
	var args []any
	if opts.UnitID != "" {
		conds = append(conds, "unit_id = ?")
		args = append(args, opts.UnitID)
	}
	if opts.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.After != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(time.DateTime))
	}

	query := "SELECT id, kind, unit_id, command_id, detail, created_at FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	return query, args
}
