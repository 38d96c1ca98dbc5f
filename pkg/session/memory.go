package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]*Session),
	}
}

// Ensure returns the session for chatID, creating it if absent.
func (s *MemoryStore) Ensure(_ context.Context, chatID int64, username string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		now := time.Now()
		sess = &Session{
			ChatID:       chatID,
			CreatedAt:    now,
			LastActiveAt: now,
		}
		s.sessions[chatID] = sess
	}
	if username != "" {
		sess.Username = username
	}

	sc := *sess
	return &sc, nil
}

// Get retrieves a session by chat id. Returns nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, chatID int64) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	sc := *sess
	return &sc, nil
}

// SetAuthenticated marks the session's authentication state.
func (s *MemoryStore) SetAuthenticated(_ context.Context, chatID int64, authenticated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return nil
	}
	sess.Authenticated = authenticated
	return nil
}

// Touch updates LastActiveAt.
func (s *MemoryStore) Touch(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return nil
	}
	sess.LastActiveAt = time.Now()
	return nil
}

// List returns all known sessions.
func (s *MemoryStore) List(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sc := *sess
		result = append(result, &sc)
	}
	return result, nil
}

// Close releases resources held by the store.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
