package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Store is a SQLite-backed Recorder. Uses WAL mode so readers (the CLI
// trace command, dashboards) stay unblocked while a client writes.
type Store struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts one event row. Implements Recorder.
func (s *Store) Record(ev Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events
		(seq, at, type, endpoint, kind, key, key_hash, request_id, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Seq,
		ev.At.UTC().Format(time.RFC3339Nano),
		string(ev.Type),
		ev.Endpoint,
		ev.Kind,
		ev.Key,
		ev.KeyHash,
		ev.RequestID,
		ev.Status,
		ev.Error,
		ev.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	// Endpoint restricts results to one endpoint name.
	Endpoint string

	// Type restricts results to one event type.
	Type EventType

	// KeyHash restricts results to one cache key.
	KeyHash string

	// Limit caps the number of rows returned; zero means no cap.
	Limit int
}

// List returns matching events ordered by seq ASC, id ASC.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) List(ctx context.Context, f Filter) ([]Event, error) {
	var conds []string
	var args []any
	if f.Endpoint != "" {
		conds = append(conds, "endpoint = ?")
		args = append(args, f.Endpoint)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.KeyHash != "" {
		conds = append(conds, "key_hash = ?")
		args = append(args, f.KeyHash)
	}

	query := `
		SELECT seq, at, type, endpoint, kind, key, key_hash, request_id, status, error, duration_ms
		FROM events`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY seq ASC, id ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf("\n\t\tLIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	// Return empty slice instead of nil
	if events == nil {
		events = []Event{}
	}

	return events, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var ev Event
	var at, typ string

	if err := rows.Scan(
		&ev.Seq, &at, &typ, &ev.Endpoint, &ev.Kind, &ev.Key, &ev.KeyHash,
		&ev.RequestID, &ev.Status, &ev.Error, &ev.DurationMS,
	); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Event{}, fmt.Errorf("parse event time %q: %w", at, err)
	}
	ev.At = parsed
	ev.Type = EventType(typ)

	return ev, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and stamps the schema
// version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}
