// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and
// routes. It decides:
//   - Which URL patterns map to which handler functions
//   - Which routes need a session, and how an anonymous caller is answered
//   - How the server starts, runs its background jobs and stops
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//
//	config → jsonfile.Store + upload.Store + auth.SharedSecret → Server
//
// Server.New() creates:
//
//	SessionStore → SessionService → SessionHandler
//	DocumentStore + uploads → JournalService → JournalHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/ourworld/internal/auth"
	"github.com/sakif/ourworld/internal/handler"
	"github.com/sakif/ourworld/internal/metrics"
	"github.com/sakif/ourworld/internal/middleware"
	"github.com/sakif/ourworld/internal/repository"
	"github.com/sakif/ourworld/internal/service"
	"github.com/sakif/ourworld/internal/upload"
)

// Background job intervals.
const (
	SessionSweepInterval = time.Hour
	limiterPruneInterval = 10 * time.Minute
	limiterIdle          = 30 * time.Minute
)

// Config holds server configuration.
type Config struct {
	Port      int
	StaticDir string // served as the site root when it exists

	// SecureCookies marks the session cookie Secure (HTTPS only).
	SecureCookies bool

	MetricsEnabled bool

	LoginRate  float64 // login attempts per second per client IP
	LoginBurst int

	// TrustedProxies may set the client address through X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the document store. When the server shuts down the store
// is closed after the last in-flight request finished, so no write is cut
// off halfway.
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	store    repository.DocumentStore
	sessions *auth.SessionStore
	limiter  *middleware.RateLimiter
}

// New creates a new Server and wires every route.
//
// Each layer only receives what it needs:
//   - Services get the store interface and the upload store
//   - Handlers get services, never the store
func New(cfg Config, store repository.DocumentStore, uploads *upload.Store, secret *auth.SharedSecret, logger *slog.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    store,
		sessions: auth.NewSessionStore(logger),
		limiter:  middleware.NewRateLimiter(cfg.LoginRate, cfg.LoginBurst, limiterIdle),
	}
	s.setupRoutes(uploads, secret)
	return s
}

// Router exposes the fully wired handler. Tests drive it with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Sessions exposes the session table so tests can inspect it.
func (s *Server) Sessions() *auth.SessionStore {
	return s.sessions
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /api/health                     → liveness + store file check
//	POST   /api/session/login              → rate limited
//	POST   /api/session/logout
//	GET    /api/session/status
//	GET    /api/profile/public             → public, shown on the login page
//	...    /api/*                          → everything else needs a session (401)
//	GET    /uploads/*                      → needs a session (302 to login)
//	GET    /metrics                        → Prometheus, if enabled (off by default in production)
//	GET    /*                              → static site, protected pages redirect
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: takes the client IP from proxy headers, but only from
//     trusted proxies; the login rate limiter keys on it
//  3. Recoverer: catches panics and returns 500 instead of crashing
//  4. Logger and metrics: see the final status of every request
func (s *Server) setupRoutes(uploads *upload.Store, secret *auth.SharedSecret) {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(middleware.RealIP(s.config.TrustedProxies))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(metrics.Middleware())

	// === Services & Handlers ===
	sessionService := service.NewSessionService(secret, s.sessions, s.logger)
	journalService := service.NewJournalService(s.store, uploads, s.logger)

	sessionHandler := handler.NewSessionHandler(sessionService, s.config.SecureCookies, s.logger)
	journalHandler := handler.NewJournalHandler(journalService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store.Path())
	uploadHandler := handler.NewUploadHandler(uploads, s.logger)

	requireAuth := auth.RequireAuth(s.sessions)

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Route("/session", func(r chi.Router) {
			r.With(s.limiter.Middleware()).Post("/login", sessionHandler.HandleLogin)
			r.Post("/logout", sessionHandler.HandleLogout)
			r.Get("/status", sessionHandler.HandleStatus)
		})

		r.Get("/profile/public", journalHandler.HandlePublicProfile)

		// Everything below needs a session. RequireAuth answers 401 before
		// any handler (and therefore any store access) runs.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/profile", journalHandler.HandleGetProfile)
			r.Post("/profile", journalHandler.HandleUpdateProfile)

			r.Get("/home/events", journalHandler.HandleListEvents)
			r.Post("/home/events", journalHandler.HandleCreateEvent)
			r.Delete("/home/events/{id}", journalHandler.HandleDeleteEvent)

			r.Get("/memories", journalHandler.HandleListMemories)
			r.Post("/memories", journalHandler.HandleCreateMemory)
			r.Delete("/memories/{id}", journalHandler.HandleDeleteMemory)

			r.Get("/blog", journalHandler.HandleListBlogPosts)
			r.Post("/blog", journalHandler.HandleCreateBlogPost)
			r.Delete("/blog/{id}", journalHandler.HandleDeleteBlogPost)

			r.Route("/dates", func(r chi.Router) {
				r.Get("/", journalHandler.HandleDates)

				r.Get("/ideas", journalHandler.HandleListDateIdeas)
				r.Post("/ideas", journalHandler.HandleCreateDateIdea)
				r.Patch("/ideas/{id}", journalHandler.HandleUpdateDateIdea)
				r.Delete("/ideas/{id}", journalHandler.HandleDeleteDateIdea)

				r.Get("/bucket", journalHandler.HandleListBucketItems)
				r.Post("/bucket", journalHandler.HandleCreateBucketItem)
				r.Patch("/bucket/{id}", journalHandler.HandleToggleBucketItem)
				r.Put("/bucket/{id}", journalHandler.HandleToggleBucketItem)
				r.Patch("/bucket/{id}/toggle", journalHandler.HandleToggleBucketItem)
				r.Put("/bucket/{id}/toggle", journalHandler.HandleToggleBucketItem)
				r.Delete("/bucket/{id}", journalHandler.HandleDeleteBucketItem)
			})

			r.Get("/special-days", journalHandler.HandleListSpecialDays)
			r.Post("/special-days", journalHandler.HandleCreateSpecialDay)
			r.Delete("/special-days/{id}", journalHandler.HandleDeleteSpecialDay)

			r.Get("/favorites", journalHandler.HandleListFavorites)
			r.Post("/favorites", journalHandler.HandleCreateFavorite)
			r.Delete("/favorites/{id}", journalHandler.HandleDeleteFavorite)

			r.Get("/fun", journalHandler.HandleFun)
			r.Post("/fun/polls/{id}/vote", journalHandler.HandleVote)
		})

		// Unknown API paths get JSON, not the static site's HTML 404.
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not_found","message":"Not found"}` + "\n"))
		})
	})

	// === Private files ===
	s.router.With(auth.RequireAuthRedirect(s.sessions, handler.LoginPage)).
		Get("/uploads/*", uploadHandler.HandleUpload)

	// === Metrics ===
	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", metrics.Handler())
	}

	// === Static site ===
	if info, err := os.Stat(s.config.StaticDir); err == nil && info.IsDir() {
		pages := handler.NewPageHandler(s.config.StaticDir, s.logger)
		s.router.With(auth.OptionalAuth(s.sessions)).Get("/*", pages.ServeHTTP)
	} else {
		s.logger.Warn("static directory not found, serving the API only",
			slog.String("dir", s.config.StaticDir))
	}
}

// runBackground starts the session sweeper and the rate limiter pruner.
// Both stop when ctx is cancelled; the returned WaitGroup tracks them.
func (s *Server) runBackground(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(SessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sessions.Sweep()
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.limiter.Run(ctx, limiterPruneInterval)
	}()

	return &wg
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the background jobs
//  4. Close the document store
//
// A request that is mid-Update when the signal arrives still completes its
// durable write in step 2.
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	background := s.runBackground(bgCtx)
	defer func() {
		stopBackground()
		background.Wait()
	}()

	// WriteTimeout is generous: a 15 MiB upload over a slow phone
	// connection takes a while.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.store.Path()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
