package auth

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ourworld/internal/middleware"
)

// okHandler records that it ran and echoes whether a session was attached.
func okHandler(ran *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*ran = true
		if _, ok := SessionFromContext(r.Context()); ok {
			w.Write([]byte("authenticated"))
			return
		}
		w.Write([]byte("anonymous"))
	})
}

func requestWithToken(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/home/events", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	}
	return req
}

func TestRequireAuth(t *testing.T) {
	store, clock := newTestSessionStore(t)
	valid, _, err := store.Create()
	require.NoError(t, err)
	revoked, _, _ := store.Create()
	store.Revoke(revoked)
	expiring, _, _ := store.Create()

	// Push the third session past expiry without touching the first.
	clock.Advance(SessionTTL)
	valid2, _, _ := store.Create()

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantRan    bool
	}{
		{"no cookie", "", http.StatusUnauthorized, false},
		{"unknown token", "abc", http.StatusUnauthorized, false},
		{"revoked", revoked, http.StatusUnauthorized, false},
		{"expired", expiring, http.StatusUnauthorized, false},
		{"expired too", valid, http.StatusUnauthorized, false},
		{"valid", valid2, http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			rr := httptest.NewRecorder()

			RequireAuth(store)(okHandler(&ran)).ServeHTTP(rr, requestWithToken(tt.token))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantRan, ran)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"not_authenticated","message":"Not authenticated"}`, rr.Body.String())
			}
		})
	}
}

func TestRequireAuth_ExposesToken(t *testing.T) {
	store, _ := newTestSessionStore(t)
	token, _, _ := store.Create()

	var got string
	h := RequireAuth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = TokenFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), requestWithToken(token))

	assert.Equal(t, token, got)
}

func TestRequireAuthRedirect(t *testing.T) {
	store, _ := newTestSessionStore(t)
	token, _, _ := store.Create()

	ran := false
	rr := httptest.NewRecorder()
	RequireAuthRedirect(store, "/login.html")(okHandler(&ran)).ServeHTTP(rr, requestWithToken(""))
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login.html", rr.Header().Get("Location"))
	assert.False(t, ran)

	rr = httptest.NewRecorder()
	RequireAuthRedirect(store, "/login.html")(okHandler(&ran)).ServeHTTP(rr, requestWithToken(token))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, ran)
}

func TestOptionalAuth(t *testing.T) {
	store, _ := newTestSessionStore(t)
	token, _, _ := store.Create()

	for tok, want := range map[string]string{"": "anonymous", "bogus": "anonymous", token: "authenticated"} {
		ran := false
		rr := httptest.NewRecorder()
		OptionalAuth(store)(okHandler(&ran)).ServeHTTP(rr, requestWithToken(tok))

		assert.True(t, ran)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, want, rr.Body.String())
	}
}

func TestSetSessionCookie(t *testing.T) {
	tests := []struct {
		name   string
		secure bool
	}{
		{"development", false},
		{"production", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			sess := Session{Authenticated: true, ExpiresAt: time.Now().Add(SessionTTL)}

			SetSessionCookie(rr, "tok", sess, tt.secure)

			cookies := rr.Result().Cookies()
			require.Len(t, cookies, 1)
			c := cookies[0]
			assert.Equal(t, CookieName, c.Name)
			assert.Equal(t, "tok", c.Value)
			assert.Equal(t, "/", c.Path)
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			assert.Equal(t, 7*24*60*60, c.MaxAge)
			assert.Equal(t, tt.secure, c.Secure)
		})
	}
}

func TestClearSessionCookie(t *testing.T) {
	rr := httptest.NewRecorder()
	ClearSessionCookie(rr, true)

	header := rr.Header().Get("Set-Cookie")
	assert.Contains(t, header, CookieName+"=;")
	assert.Contains(t, header, "Max-Age=0")
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "Secure")
}

func TestRequireAuth_RecordsOutcomeOnRequestLog(t *testing.T) {
	store, _ := newTestSessionStore(t)
	token, _, err := store.Create()
	require.NoError(t, err)

	tests := []struct {
		token string
		want  string
	}{
		{"", "session=none"},
		{"forged", "session=unknown"},
		{token, "session=valid"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			ran := false
			h := middleware.Logger(logger)(RequireAuth(store)(okHandler(&ran)))

			h.ServeHTTP(httptest.NewRecorder(), requestWithToken(tt.token))

			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
