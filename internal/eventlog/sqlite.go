package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink mirrors events into a local SQLite database so past sessions
// can be queried with `playctl history`.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens the database at path with WAL journaling and a busy
// timeout, and creates the events table if needed.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}

	s := &SQLiteSink{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session TEXT NOT NULL,
  target TEXT NOT NULL,
  ts TEXT NOT NULL,
  percent INTEGER NOT NULL,
  size TEXT NOT NULL,
  status TEXT NOT NULL,
  terminal INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS events_session ON events(session, id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	return nil
}

// Append implements Sink.
func (s *SQLiteSink) Append(ctx context.Context, e Event) error {
	const stmt = `
INSERT INTO events (session, target, ts, percent, size, status, terminal)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		e.Session, e.Target, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Percent, e.Size, e.Status, e.Terminal,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// SessionSummary describes one recorded tracking session.
type SessionSummary struct {
	Session  string    `json:"session"`
	Target   string    `json:"target"`
	Started  time.Time `json:"started"`
	Events   int       `json:"events"`
	Last     int       `json:"last_percent"`
	Terminal bool      `json:"terminal"`
}

// Sessions lists recorded sessions, most recent first.
func (s *SQLiteSink) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT session, target, MIN(ts), COUNT(*),
       (SELECT percent FROM events e2 WHERE e2.session = e.session ORDER BY id DESC LIMIT 1),
       MAX(terminal)
FROM events e
GROUP BY session, target
ORDER BY MIN(id) DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum      SessionSummary
			started  string
			terminal int
		)
		if err := rows.Scan(&sum.Session, &sum.Target, &started, &sum.Events, &sum.Last, &terminal); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.Started, _ = time.Parse(time.RFC3339Nano, started)
		sum.Terminal = terminal != 0
		out = append(out, sum)
	}
	return out, rows.Err()
}

// History returns the events of one session in append order.
func (s *SQLiteSink) History(ctx context.Context, session string) ([]Event, error) {
	const q = `
SELECT session, target, ts, percent, size, status, terminal
FROM events WHERE session = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, session)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e  Event
			ts string
		)
		if err := rows.Scan(&e.Session, &e.Target, &ts, &e.Percent, &e.Size, &e.Status, &e.Terminal); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
