package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/ourworld/internal/auth"
	"github.com/sakif/ourworld/internal/service"
)

// SessionHandler serves login, logout and the session status probe.
//
// COOKIE OWNERSHIP:
// The service decides whether a password is right and hands back a token;
// only this handler knows that the token travels in a cookie. Secure is
// set in production, where the app is only reachable over HTTPS.
type SessionHandler struct {
	sessions *service.SessionService
	secure   bool
	logger   *slog.Logger
}

func NewSessionHandler(sessions *service.SessionService, secure bool, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, secure: secure, logger: logger}
}

type loginRequest struct {
	Password string `json:"password"`
}

type statusResponse struct {
	Authenticated bool `json:"authenticated"`
}

// HandleLogin checks the shared password and starts a session.
//
// HTTP: POST /api/session/login
// REQUEST BODY: {"password": "..."}
// RESPONSE: {"success": true} plus the session cookie, or 401.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, sess, err := h.sessions.Login(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetSessionCookie(w, token, sess, h.secure)
	writeJSON(w, http.StatusOK, success)
}

// HandleLogout revokes the caller's session, if any, and clears the cookie.
// Logging out twice is fine.
//
// HTTP: POST /api/session/logout
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		h.sessions.Logout(token)
	}
	auth.ClearSessionCookie(w, h.secure)
	writeJSON(w, http.StatusOK, success)
}

// HandleStatus reports whether the request carries a live session.
//
// HTTP: GET /api/session/status
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Authenticated: h.sessions.Status(auth.TokenFromRequest(r)),
	})
}
