// Package postgres provides PostgreSQL storage for sessions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/txn2/printerbot/pkg/session"
)

// Store implements session.Store using PostgreSQL. Sessions survive
// process restarts, so users do not have to re-authenticate after a
// redeploy.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ensure returns the session for chatID, creating it if absent.
func (s *Store) Ensure(ctx context.Context, chatID int64, username string) (*session.Session, error) {
	now := time.Now()
	query := `
		INSERT INTO sessions (chat_id, username, authenticated, created_at, last_active_at)
		VALUES ($1, $2, FALSE, $3, $3)
		ON CONFLICT (chat_id) DO UPDATE
		SET username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE sessions.username END
		RETURNING chat_id, username, authenticated, created_at, last_active_at
	`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, chatID, username, now))
	if err != nil {
		return nil, fmt.Errorf("ensuring session: %w", err)
	}
	return sess, nil
}

// Get retrieves a session by chat id. Returns nil, nil if not found.
func (s *Store) Get(ctx context.Context, chatID int64) (*session.Session, error) {
	query := `
		SELECT chat_id, username, authenticated, created_at, last_active_at
		FROM sessions
		WHERE chat_id = $1
	`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

// SetAuthenticated marks the session's authentication state.
func (s *Store) SetAuthenticated(ctx context.Context, chatID int64, authenticated bool) error {
	query := `UPDATE sessions SET authenticated = $2 WHERE chat_id = $1`
	if _, err := s.db.ExecContext(ctx, query, chatID, authenticated); err != nil {
		return fmt.Errorf("updating session authentication: %w", err)
	}
	return nil
}

// Touch updates LastActiveAt.
func (s *Store) Touch(ctx context.Context, chatID int64) error {
	query := `UPDATE sessions SET last_active_at = NOW() WHERE chat_id = $1`
	if _, err := s.db.ExecContext(ctx, query, chatID); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// List returns all known sessions.
func (s *Store) List(ctx context.Context) ([]*session.Session, error) {
	query := `
		SELECT chat_id, username, authenticated, created_at, last_active_at
		FROM sessions
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// Close releases resources held by the store. The *sql.DB is owned by
// the caller and is not closed here.
func (s *Store) Close() error {
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var sess session.Session
	err := row.Scan(&sess.ChatID, &sess.Username, &sess.Authenticated,
		&sess.CreatedAt, &sess.LastActiveAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
