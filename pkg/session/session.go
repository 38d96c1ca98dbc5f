// Package session provides session management for printerbot.
// It defines the Store interface for session persistence and the Session
// type that represents a chat's authentication context.
package session

import (
	"context"
	"time"
)

// Session is the per-chat authentication context. Sessions are created
// on first interaction, keyed by chat id, and never explicitly
// destroyed.
type Session struct {
	// ChatID is the chat/user identity the session belongs to.
	ChatID int64

	// Username is the last seen username for the chat, informational only.
	Username string

	// Authenticated is set once the shared password has been supplied.
	Authenticated bool

	// CreatedAt is when the session was first seen.
	CreatedAt time.Time

	// LastActiveAt is the most recent activity timestamp.
	LastActiveAt time.Time
}

// Store defines the interface for session persistence.
type Store interface {
	// Ensure returns the session for chatID, creating it if absent.
	// The username is refreshed on every call.
	Ensure(ctx context.Context, chatID int64, username string) (*Session, error)

	// Get retrieves a session by chat id. Returns nil, nil if not found.
	Get(ctx context.Context, chatID int64) (*Session, error)

	// SetAuthenticated marks the session's authentication state.
	SetAuthenticated(ctx context.Context, chatID int64, authenticated bool) error

	// Touch updates LastActiveAt.
	Touch(ctx context.Context, chatID int64) error

	// List returns all known sessions.
	List(ctx context.Context) ([]*Session, error)

	// Close releases resources held by the store.
	Close() error
}
