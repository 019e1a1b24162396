package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			memory_id TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (memory_id, actor_id, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_actor ON sessions(memory_id, actor_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			memory_id TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (memory_id, actor_id, session_id) REFERENCES sessions(memory_id, actor_id, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(memory_id, actor_id, session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append stores msgs in one transaction, creating the session row on first use.
func (s *SQLiteStore) Append(ctx context.Context, key domain.MemoryKey, msgs ...domain.Message) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (memory_id, actor_id, session_id, created_at) VALUES (?, ?, ?, ?)`,
		key.MemoryID, key.ActorID, key.SessionID, now); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	for _, msg := range msgs {
		content, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, memory_id, actor_id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"evt_"+uuid.New().String(), key.MemoryID, key.ActorID, key.SessionID, string(msg.Role), string(content), now); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// Events retrieves a session's events in insertion order.
func (s *SQLiteStore) Events(ctx context.Context, key domain.MemoryKey) ([]domain.MemoryEvent, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, content, created_at FROM events
		 WHERE memory_id = ? AND actor_id = ? AND session_id = ?
		 ORDER BY seq ASC`,
		key.MemoryID, key.ActorID, key.SessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.MemoryEvent{}
	for rows.Next() {
		var (
			evt     domain.MemoryEvent
			content string
		)
		if err := rows.Scan(&evt.EventID, &content, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &evt.Message); err != nil {
			return nil, fmt.Errorf("event %s: %w", evt.EventID, err)
		}
		evt.Key = key
		events = append(events, evt)
	}
	return events, rows.Err()
}

// ListSessions retrieves an actor's most recent sessions.
func (s *SQLiteStore) ListSessions(ctx context.Context, memoryID, actorID string, limit int) ([]domain.SessionSummary, error) {
	if err := validateActor(memoryID, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.SessionSummary{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, created_at FROM sessions
		 WHERE memory_id = ? AND actor_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		memoryID, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.SessionSummary{}
	for rows.Next() {
		summary := domain.SessionSummary{ActorID: actorID}
		if err := rows.Scan(&summary.SessionID, &summary.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}
