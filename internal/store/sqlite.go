// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists joint session rows and the topic list with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/stranger-relay/internal/relay"
)

const topicsKey = "topics"

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// The relay loop is the only writer.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	abandoned, err := s.closeAbandoned(time.Now())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("closing abandoned sessions: %w", err)
	}
	if abandoned > 0 {
		logger.Warn("closed sessions left open by a previous run", "count", abandoned)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			topics_json TEXT NOT NULL DEFAULT '[]',
			started_at  TEXT NOT NULL,
			ended_at    TEXT,
			end_reason  TEXT,
			ended_by    TEXT,

			CHECK (ended_by IS NULL OR ended_by IN ('', 'A', 'B'))
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);

		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) closeAbandoned(at time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, end_reason = ?, ended_by = '' WHERE ended_at IS NULL`,
		formatTime(at), string(EndReasonAbandoned),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// StartSession records the start of a joint session.
func (s *SQLiteStore) StartSession(ctx context.Context, id string, topics []string, at time.Time) error {
	topicsJSON, err := marshalTopics(topics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topics_json, started_at) VALUES (?, ?, ?)`,
		id, topicsJSON, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	s.logger.Debug("started session", "id", id)
	return nil
}

// EndSession closes a running session. Returns ErrNotFound when no open
// session has the id.
func (s *SQLiteStore) EndSession(ctx context.Context, id string, reason relay.EndReason, side relay.Side, at time.Time) error {
	endedBy := side.String()
	if reason == relay.ReasonRetry {
		endedBy = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, end_reason = ?, ended_by = ? WHERE id = ? AND ended_at IS NULL`,
		formatTime(at), string(reason), endedBy, id,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("ended session", "id", id, "reason", string(reason))
	return nil
}

// GetSession retrieves a session by ID.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topics_json, started_at, ended_at, end_reason, ended_by FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// RecentSessions returns up to limit sessions, newest first.
func (s *SQLiteStore) RecentSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topics_json, started_at, ended_at, end_reason, ended_by
		FROM sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Topics returns the persisted topic list.
func (s *SQLiteStore) Topics(ctx context.Context) ([]string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, topicsKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	return unmarshalTopics(value)
}

// SaveTopics replaces the persisted topic list. An empty list clears it.
func (s *SQLiteStore) SaveTopics(ctx context.Context, topics []string) error {
	value, err := marshalTopics(topics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, topicsKey, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving topics: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess                Session
		topicsJSON, started string
		ended, reason, by   sql.NullString
	)
	if err := row.Scan(&sess.ID, &topicsJSON, &started, &ended, &reason, &by); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	var err error
	if sess.Topics, err = unmarshalTopics(topicsJSON); err != nil {
		return nil, err
	}
	if sess.StartedAt, err = time.Parse(timeFormat, started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if ended.Valid {
		t, err := time.Parse(timeFormat, ended.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		sess.EndedAt = &t
	}
	sess.Reason = relay.EndReason(reason.String)
	sess.EndedBy = by.String
	return &sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func marshalTopics(topics []string) (string, error) {
	if topics == nil {
		topics = []string{}
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return "", fmt.Errorf("marshaling topics: %w", err)
	}
	return string(data), nil
}

func unmarshalTopics(value string) ([]string, error) {
	var topics []string
	if err := json.Unmarshal([]byte(value), &topics); err != nil {
		return nil, fmt.Errorf("unmarshaling topics: %w", err)
	}
	if len(topics) == 0 {
		return nil, nil
	}
	return topics, nil
}
