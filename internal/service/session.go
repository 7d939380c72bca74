package service

import (
	"log/slog"

	"github.com/sakif/ourworld/internal/apperror"
	"github.com/sakif/ourworld/internal/auth"
	"github.com/sakif/ourworld/internal/metrics"
)

// SessionService is the login/logout orchestration:
//
//	SessionHandler (HTTP) → SessionService → SharedSecret (bcrypt)
//	                                       ↘ SessionStore (in-memory table)
//
// There is one shared password and no user accounts, so a session only
// records that whoever holds the cookie knew the password.
type SessionService struct {
	secret   *auth.SharedSecret
	sessions *auth.SessionStore
	logger   *slog.Logger
}

func NewSessionService(secret *auth.SharedSecret, sessions *auth.SessionStore, logger *slog.Logger) *SessionService {
	return &SessionService{secret: secret, sessions: sessions, logger: logger}
}

// Login checks the password and starts a session. A wrong password returns
// apperror.ErrNotAuthenticated and creates nothing.
func (s *SessionService) Login(password string) (string, auth.Session, error) {
	if !s.secret.Matches(password) {
		metrics.ObserveLogin("rejected")
		s.logger.Warn("login rejected")
		return "", auth.Session{}, apperror.NotAuthenticated("Invalid credentials")
	}

	token, sess, err := s.sessions.Create()
	if err != nil {
		return "", auth.Session{}, err
	}
	metrics.ObserveLogin("ok")
	s.logger.Info("session started", slog.Time("expires_at", sess.ExpiresAt))
	return token, sess, nil
}

// Logout revokes the session behind token, if any.
func (s *SessionService) Logout(token string) {
	if token == "" {
		return
	}
	s.sessions.Revoke(token)
	s.logger.Info("session revoked")
}

// Status reports whether token belongs to a live session.
func (s *SessionService) Status(token string) bool {
	_, ok := s.sessions.Lookup(token)
	return ok
}
