package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/ourworld/internal/metrics"
)

// SessionTTL is the fixed lifetime of a session. It is never extended by
// activity.
const SessionTTL = 7 * 24 * time.Hour

// tokenBytes is the amount of randomness in a session token (256 bits).
const tokenBytes = 32

// Session is the server-side state behind a session cookie.
type Session struct {
	Authenticated bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// expired reports whether the session is no longer valid at now. A session
// is invalid from its ExpiresAt instant onwards.
func (s Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore is the in-memory session table.
//
// SERVER-SIDE SESSIONS:
// The cookie only carries a random token. Everything the server knows about
// the session stays in this map, so logging out (Revoke) takes effect
// immediately and a restart logs everybody out. The table is process-local;
// running two server processes behind one cookie is not supported.
//
// Every access to the map happens under mu. Lookups may delete (expired
// entries are evicted lazily), so even reads take the full lock.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
	logger   *slog.Logger
}

func NewSessionStore(logger *slog.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the clock. Tests use it to move past expiry.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Create starts a new authenticated session and returns its token.
func (s *SessionStore) Create() (string, Session, error) {
	token, err := newToken()
	if err != nil {
		return "", Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := Session{
		Authenticated: true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(SessionTTL),
	}
	s.sessions[token] = sess
	metrics.SetActiveSessions(len(s.sessions))
	return token, sess, nil
}

// Lookup returns the session for token. Unknown and expired tokens report
// false; an expired entry is removed on the way.
func (s *SessionStore) Lookup(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}
	if sess.expired(s.now()) {
		delete(s.sessions, token)
		metrics.SetActiveSessions(len(s.sessions))
		return Session{}, false
	}
	return sess, true
}

// Revoke removes the session. Revoking an unknown token is a no-op.
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	metrics.SetActiveSessions(len(s.sessions))
}

// Sweep removes every expired session and returns how many were removed.
// Lookup already evicts expired entries it touches; Sweep catches the ones
// nobody asks about again.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, sess := range s.sessions {
		if sess.expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	metrics.SetActiveSessions(len(s.sessions))
	if removed > 0 {
		s.logger.Debug("expired sessions swept",
			slog.Int("removed", removed),
			slog.Int("remaining", len(s.sessions)),
		)
	}
	return removed
}

// Len returns the number of entries, expired ones not yet evicted included.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
