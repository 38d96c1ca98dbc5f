// Package auth provides shared-password authentication for printerbot.
// A single secret is loaded once at startup; chats authenticate with
// "/auth <password>" and stay authenticated for the life of the session.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/txn2/printerbot/pkg/session"
)

// ErrAuthFailure indicates the supplied password did not match the
// stored secret. It is reported to the user as a denial, never fatal.
var ErrAuthFailure = errors.New("authentication failed")

// bcryptPrefixes identify a stored secret that is a bcrypt hash rather
// than a plaintext password.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// Guard checks supplied passwords against the stored secret and marks
// sessions authenticated.
type Guard struct {
	secret   string
	hashed   bool
	sessions session.Store
}

// NewGuard creates a Guard with the given secret. The secret may be a
// plaintext password or a bcrypt hash of one.
func NewGuard(secret string, sessions session.Store) *Guard {
	return &Guard{
		secret:   secret,
		hashed:   isBcryptHash(secret),
		sessions: sessions,
	}
}

// NewGuardFromFile loads the stored secret from path. Failure here is
// fatal at startup: a printer bot without a password would accept jobs
// from anyone.
func NewGuardFromFile(path string, sessions session.Store) (*Guard, error) {
	// #nosec G304 -- path is from config, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading auth secret %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return nil, fmt.Errorf("auth secret %s is empty", path)
	}
	return NewGuard(secret, sessions), nil
}

// Authenticate compares supplied against the stored secret. On match
// the session is marked authenticated and persisted; on mismatch
// ErrAuthFailure is returned.
func (g *Guard) Authenticate(ctx context.Context, sess *session.Session, supplied string) error {
	if !g.match(supplied) {
		return ErrAuthFailure
	}

	sess.Authenticated = true
	if err := g.sessions.SetAuthenticated(ctx, sess.ChatID, true); err != nil {
		return fmt.Errorf("persisting authentication: %w", err)
	}
	return nil
}

// IsAuthorized reports whether the session may run gated commands.
func (g *Guard) IsAuthorized(sess *session.Session) bool {
	return sess != nil && sess.Authenticated
}

func (g *Guard) match(supplied string) bool {
	if g.hashed {
		return bcrypt.CompareHashAndPassword([]byte(g.secret), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(g.secret), []byte(supplied)) == 1
}

func isBcryptHash(secret string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(secret, p) {
			return true
		}
	}
	return false
}
