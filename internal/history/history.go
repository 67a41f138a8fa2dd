// Package history keeps a local SQLite record of every tracked upload and its
// outcome. It exists for the user's benefit (chatlens history); resume
// decisions come from the durable handle, never from here.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chatlens/internal/api"
)

const dbFileName = "history.db"

// schemaVersion is the current schema version. Bump when the schema changes;
// users clear the history database after a mismatch.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

const schemaSQL = `
CREATE TABLE uploads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL,
    interaction_id TEXT NOT NULL DEFAULT '',
    source_file TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    agent_states TEXT NOT NULL DEFAULT '{}',
    error_message TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE INDEX idx_uploads_job_id ON uploads (job_id);
CREATE TABLE schema_version (version INTEGER NOT NULL);
`

// Entry is one recorded upload outcome.
type Entry struct {
	ID            int64
	JobID         string
	InteractionID string
	SourceFile    string
	Outcome       string
	AgentStates   map[string]api.AgentState
	ErrorMessage  string
	CreatedAt     time.Time
	FinishedAt    time.Time
}

// Store manages history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database in the state directory.
func Open(stateDir string) (*Store, error) {
	dbPath := filepath.Join(stateDir, dbFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record inserts one finished upload outcome.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.JobID == "" {
		return errors.New("job id is empty")
	}
	states := entry.AgentStates
	if states == nil {
		states = map[string]api.AgentState{}
	}
	encoded, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("encode agent states: %w", err)
	}

	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	finished := entry.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO uploads (
            job_id, interaction_id, source_file, outcome,
            agent_states, error_message, created_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.JobID,
		entry.InteractionID,
		entry.SourceFile,
		entry.Outcome,
		string(encoded),
		entry.ErrorMessage,
		created.Format(time.RFC3339Nano),
		finished.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, interaction_id, source_file, outcome,
                agent_states, error_message, created_at, finished_at
         FROM uploads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var statesJSON, createdRaw, finishedRaw string
		if err := rows.Scan(
			&entry.ID, &entry.JobID, &entry.InteractionID, &entry.SourceFile,
			&entry.Outcome, &statesJSON, &entry.ErrorMessage, &createdRaw, &finishedRaw,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if err := json.Unmarshal([]byte(statesJSON), &entry.AgentStates); err != nil {
			return nil, fmt.Errorf("decode agent states: %w", err)
		}
		if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if entry.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedRaw); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
