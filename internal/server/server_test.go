package server_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ourworld/internal/auth"
	"github.com/sakif/ourworld/internal/model"
	"github.com/sakif/ourworld/internal/repository/jsonfile"
	"github.com/sakif/ourworld/internal/server"
	"github.com/sakif/ourworld/internal/upload"
)

type testServer struct {
	*httptest.Server
	srv     *server.Server
	store   *jsonfile.Store
	uploads *upload.Store
}

func newTestServer(t *testing.T, cfg server.Config) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "store.json"), logger)
	require.NoError(t, err)
	uploads, err := upload.New(t.TempDir(), logger)
	require.NoError(t, err)
	secret, err := auth.NewSharedSecret(auth.NewPasswordServiceForTest(4), "starlight")
	require.NoError(t, err)

	if cfg.LoginRate == 0 {
		cfg.LoginRate, cfg.LoginBurst = 100, 100
	}
	srv := server.New(cfg, store, uploads, secret, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, srv: srv, store: store, uploads: uploads}
}

// client returns an HTTP client that keeps cookies and does not follow
// redirects, so tests can assert on the 302 itself.
func (ts *testServer) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Transport:     ts.Client().Transport,
		Jar:           jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func (ts *testServer) login(t *testing.T, c *http.Client) {
	t.Helper()
	resp, err := c.Post(ts.URL+"/api/session/login", "application/json", strings.NewReader(`{"password":"starlight"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func send(t *testing.T, c *http.Client, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_AnonymousCallsAreRejectedBeforeTouchingTheStore(t *testing.T) {
	ts := newTestServer(t, server.Config{})
	c := ts.client(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/home/events"},
		{http.MethodPost, "/api/home/events"},
		{http.MethodDelete, "/api/home/events/1"},
		{http.MethodPost, "/api/memories"},
		{http.MethodGet, "/api/blog"},
		{http.MethodGet, "/api/dates"},
		{http.MethodPatch, "/api/dates/ideas/1"},
		{http.MethodPut, "/api/dates/bucket/1"},
		{http.MethodPost, "/api/special-days"},
		{http.MethodDelete, "/api/favorites/1"},
		{http.MethodGet, "/api/profile"},
		{http.MethodPost, "/api/profile"},
		{http.MethodPost, "/api/fun/polls/1/vote"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			resp := send(t, c, rt.method, ts.URL+rt.path, `{"title":"sneaky"}`)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	doc := ts.store.Snapshot()
	assert.Empty(t, doc.Events)
	assert.Empty(t, doc.SpecialDays)
	assert.Equal(t, 1, doc.NextIDs[model.CollectionEvents], "no id was allocated")
}

func TestServer_PublicRoutes(t *testing.T) {
	ts := newTestServer(t, server.Config{})
	c := ts.client(t)

	for _, path := range []string{"/api/health", "/api/session/status", "/api/profile/public"} {
		resp := send(t, c, http.MethodGet, ts.URL+path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp := send(t, c, http.MethodGet, ts.URL+"/api/health", "")
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, map[string]any{"status": "ok", "storage": true}, health)
}

func TestServer_UnknownAPIPathIsJSON404(t *testing.T) {
	ts := newTestServer(t, server.Config{})

	resp := send(t, ts.client(t), http.MethodGet, ts.URL+"/api/nope", "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServer_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t, server.Config{})
	c := ts.client(t)
	ts.login(t, c)

	resp := send(t, c, http.MethodPost, ts.URL+"/api/home/events", `{"title":"Anniversary"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, ts.store.Snapshot().Events, 1)

	// Both toggle forms reach the same handler.
	send(t, c, http.MethodPost, ts.URL+"/api/dates/bucket", `{"title":"Paris"}`)
	assert.Equal(t, http.StatusOK, send(t, c, http.MethodPatch, ts.URL+"/api/dates/bucket/1", "").StatusCode)
	assert.Equal(t, http.StatusOK, send(t, c, http.MethodPut, ts.URL+"/api/dates/bucket/1/toggle", "").StatusCode)
	assert.False(t, ts.store.Snapshot().BucketItems[0].Completed, "toggled twice")

	resp = send(t, c, http.MethodPost, ts.URL+"/api/session/logout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(t, c, http.MethodGet, ts.URL+"/api/home/events", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, ts.srv.Sessions().Len())
}

func TestServer_ConcurrentCreatesGetDistinctIDs(t *testing.T) {
	ts := newTestServer(t, server.Config{})
	c := ts.client(t)
	ts.login(t, c)

	const writers = 20
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/blog", strings.NewReader(`{"title":"race"}`))
			resp, err := c.Do(req)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	posts := ts.store.Snapshot().BlogPosts
	require.Len(t, posts, writers)
	seen := map[int]bool{}
	for _, p := range posts {
		assert.False(t, seen[p.ID], "duplicate id %d", p.ID)
		seen[p.ID] = true
	}
	assert.Equal(t, writers+1, ts.store.Snapshot().NextIDs[model.CollectionBlogPosts])
}

func TestServer_Uploads(t *testing.T) {
	ts := newTestServer(t, server.Config{})
	asset, err := ts.uploads.Save(upload.FilePayload{Data: "aGVsbG8=", Name: "hi.txt", Type: "text/plain"})
	require.NoError(t, err)

	anon := ts.client(t)
	resp := send(t, anon, http.MethodGet, ts.URL+"/uploads/"+asset.Filename, "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login.html", resp.Header.Get("Location"))

	c := ts.client(t)
	ts.login(t, c)
	resp = send(t, c, http.MethodGet, ts.URL+"/uploads/"+asset.Filename, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestServer_LoginIsRateLimited(t *testing.T) {
	ts := newTestServer(t, server.Config{LoginRate: 0.001, LoginBurst: 2})
	c := ts.client(t)

	codes := []int{}
	for range 3 {
		resp := send(t, c, http.MethodPost, ts.URL+"/api/session/login", `{"password":"wrong"}`)
		codes = append(codes, resp.StatusCode)
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)

	// Only login is throttled.
	assert.Equal(t, http.StatusOK, send(t, c, http.MethodGet, ts.URL+"/api/session/status", "").StatusCode)
}

func TestServer_LoginLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	ts := newTestServer(t, server.Config{LoginRate: 0.001, LoginBurst: 2})
	c := ts.client(t)

	codes := []int{}
	for i := range 6 {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/session/login", strings.NewReader(`{"password":"wrong"}`))
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		resp, err := c.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}

	assert.Equal(t, []int{
		http.StatusUnauthorized, http.StatusUnauthorized,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)
}

func TestServer_LoginLimitPerClientBehindTrustedProxy(t *testing.T) {
	ts := newTestServer(t, server.Config{
		LoginRate:      0.001,
		LoginBurst:     1,
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")},
	})
	c := ts.client(t)

	login := func(client string) int {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/session/login", strings.NewReader(`{"password":"wrong"}`))
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", client)
		resp, err := c.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, login("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, login("198.51.100.1"))
	assert.Equal(t, http.StatusUnauthorized, login("198.51.100.2"), "another client behind the proxy")
}

func TestServer_Metrics(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		ts := newTestServer(t, server.Config{MetricsEnabled: true})
		c := ts.client(t)
		send(t, c, http.MethodGet, ts.URL+"/api/health", "")

		resp := send(t, c, http.MethodGet, ts.URL+"/metrics", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `ourworld_http_requests_total{method="GET",route="/api/health",status="200"}`)
	})

	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, server.Config{})
		resp := send(t, ts.client(t), http.MethodGet, ts.URL+"/metrics", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServer_StaticSite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("home"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.html"), []byte("login"), 0o644))

	ts := newTestServer(t, server.Config{StaticDir: dir})

	anon := ts.client(t)
	resp := send(t, anon, http.MethodGet, ts.URL+"/", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, http.StatusOK, send(t, anon, http.MethodGet, ts.URL+"/login", "").StatusCode)

	c := ts.client(t)
	ts.login(t, c)
	resp = send(t, c, http.MethodGet, ts.URL+"/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "home", string(body))
}
