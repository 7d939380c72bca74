package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/ourworld/internal/middleware"
)

// CookieName is the session cookie. The value is the opaque session token.
const CookieName = "ourworld.sid"

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A package-private type means
// only this package can create (and therefore read or shadow) these keys.
type contextKey string

const (
	sessionKey contextKey = "session"
	tokenKey   contextKey = "sessionToken"
)

// How a request's cookie resolved, as recorded on its log line.
const (
	outcomeNone    = "none"    // no cookie
	outcomeUnknown = "unknown" // unknown or expired token
	outcomeValid   = "valid"
)

// RequireAuth is a middleware that enforces an authenticated session on API
// routes.
//
// It resolves the session cookie against the session table. If there is no
// cookie, the token is unknown, or the session expired, it answers 401 with
// the standard JSON error body and the wrapped handler never runs: nothing
// is read from or written to the store on behalf of an anonymous caller.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new one that wraps it.
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := resolve(r, sessions)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"not_authenticated","message":"Not authenticated"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthRedirect is RequireAuth for pages and private files: anonymous
// browsers are sent to loginPath instead of getting a JSON error.
func RequireAuthRedirect(sessions *SessionStore, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := resolve(r, sessions)
			if !ok {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the session to the context when there is a valid
// one, and always continues. Handlers check SessionFromContext.
func OptionalAuth(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ctx, ok := resolve(r, sessions); ok {
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext returns the session resolved by one of the middlewares.
//
// Returns (Session{}, false) if the request is anonymous.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok && s.Authenticated
}

// TokenFromContext returns the token of the resolved session.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok && t != ""
}

// TokenFromRequest reads the raw session token from the cookie without
// checking it.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		// http.ErrNoCookie means anonymous, not an error
		return ""
	}
	return c.Value
}

// SetSessionCookie sends the cookie for a freshly created session.
//
// COOKIE ATTRIBUTES:
//   - HttpOnly: page scripts cannot read the token
//   - SameSite=Lax: not sent on cross-site POSTs
//   - Secure: only over HTTPS, enabled in production
//   - Max-Age: same fixed 7 days as the server-side session
func SetSessionCookie(w http.ResponseWriter, token string, sess Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // sent as Max-Age=0
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// resolve looks the cookie up in the session table and records the
// outcome on the request log line. It is the private helper shared by all
// three middlewares.
func resolve(r *http.Request, sessions *SessionStore) (context.Context, bool) {
	token := TokenFromRequest(r)
	if token == "" {
		middleware.AddLogAttrs(r.Context(), slog.String("session", outcomeNone))
		return nil, false
	}
	sess, ok := sessions.Lookup(token)
	if !ok || !sess.Authenticated {
		middleware.AddLogAttrs(r.Context(), slog.String("session", outcomeUnknown))
		return nil, false
	}
	middleware.AddLogAttrs(r.Context(), slog.String("session", outcomeValid))
	ctx := context.WithValue(r.Context(), sessionKey, sess)
	ctx = context.WithValue(ctx, tokenKey, token)
	return ctx, true
}
