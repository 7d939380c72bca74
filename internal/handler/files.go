package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ourworld/internal/apperror"
	"github.com/sakif/ourworld/internal/auth"
)

// LoginPage is where anonymous browsers are sent.
const LoginPage = "/login.html"

// ProtectedPages are the static pages that need a session. Everything else
// in the static directory (login page, CSS, scripts) is public.
var ProtectedPages = map[string]bool{
	"/index.html":        true,
	"/memories.html":     true,
	"/blog.html":         true,
	"/dates.html":        true,
	"/special-days.html": true,
	"/favorites.html":    true,
	"/profile.html":      true,
	"/bablu.html":        true,
}

// =========================================================================
// HEALTH
// =========================================================================

type healthResponse struct {
	Status  string `json:"status"`
	Storage bool   `json:"storage"`
}

// HealthHandler answers the platform's liveness probe.
type HealthHandler struct {
	storePath string
}

func NewHealthHandler(storePath string) *HealthHandler {
	return &HealthHandler{storePath: storePath}
}

// HandleHealth reports "ok" and whether the store file exists on disk.
//
// HTTP: GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := os.Stat(h.storePath)
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Storage: err == nil})
}

// =========================================================================
// UPLOADS
// =========================================================================

// Resolver maps a requested upload name to a file on disk.
// Implemented by *upload.Store.
type Resolver interface {
	Resolve(requested string) (string, error)
}

// UploadHandler serves stored blobs. It is mounted behind
// auth.RequireAuthRedirect: uploads are private.
type UploadHandler struct {
	uploads Resolver
	logger  *slog.Logger
}

func NewUploadHandler(uploads Resolver, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, logger: logger}
}

// HandleUpload: GET /uploads/*
//
// Names that escape the upload directory get 400, unknown names 404.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	target, err := h.uploads.Resolve(chi.URLParam(r, "*"))
	switch {
	case errors.Is(err, apperror.ErrValidation):
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	// Private content: browsers may cache it, shared caches may not.
	serveFile(w, r, target, "private, max-age=3600")
}

// =========================================================================
// STATIC PAGES
// =========================================================================

// PageHandler serves the static site. It expects auth.OptionalAuth to run
// first so it can tell whether the caller has a session.
//
// URL RESOLUTION:
//
//	/            → /index.html
//	/memories    → /memories.html (when no file "memories" exists)
//	/login.html  → served to everyone
//
// Protection is decided on the file that is finally served, so the
// extensionless form of a protected page is protected too.
type PageHandler struct {
	dir    string
	logger *slog.Logger
}

func NewPageHandler(dir string, logger *slog.Logger) *PageHandler {
	return &PageHandler{dir: filepath.Clean(dir), logger: logger}
}

func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := path.Clean("/" + r.URL.Path)
	if urlPath == "/" {
		urlPath = "/index.html"
	}

	target, ok := h.lookup(urlPath)
	if !ok && path.Ext(urlPath) == "" {
		urlPath += ".html"
		target, ok = h.lookup(urlPath)
	}

	if ProtectedPages[urlPath] {
		if _, authed := auth.SessionFromContext(r.Context()); !authed {
			http.Redirect(w, r, LoginPage, http.StatusFound)
			return
		}
	}
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	serveFile(w, r, target, "public, max-age=3600")
}

// lookup returns the regular file under the static directory for urlPath.
// urlPath is already cleaned and rooted, so it cannot climb out of dir.
func (h *PageHandler) lookup(urlPath string) (string, bool) {
	target := filepath.Join(h.dir, filepath.FromSlash(urlPath))
	if target != h.dir && !strings.HasPrefix(target, h.dir+string(filepath.Separator)) {
		return "", false
	}
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return target, true
}

// serveFile streams a file with the given Cache-Control.
//
// http.ServeContent picks the Content-Type from the extension (sniffing
// when unknown) and handles Range and If-Modified-Since, which matters for
// the songs and videos people attach to favorites.
func serveFile(w http.ResponseWriter, r *http.Request, target, cacheControl string) {
	f, err := os.Open(target)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", cacheControl)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
