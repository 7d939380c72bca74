// Package middleware contains HTTP middleware functions.
//
// WHAT IS MIDDLEWARE?
// Middleware wraps an http.Handler to add cross-cutting behaviour (request
// logging, client address resolution, throttling) without touching the
// handler itself:
//
//	func MyMiddleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // before
//	        next.ServeHTTP(w, r)
//	        // after
//	    })
//	}
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder remembers the status code and body size of a response.
// http.ResponseWriter does not expose either once written.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// logEntry collects attributes that inner handlers want on the request's
// log line. The auth middlewares record how the session cookie resolved.
type logEntry struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

type logEntryKey struct{}

// AddLogAttrs attaches attrs to the "request completed" line of the request
// carrying ctx. It is a no-op outside Logger.
func AddLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	e, ok := ctx.Value(logEntryKey{}).(*logEntry)
	if !ok {
		return
	}
	e.mu.Lock()
	e.attrs = append(e.attrs, attrs...)
	e.mu.Unlock()
}

// Logger writes one structured line per request once the response is done.
//
// LOG LINE:
//
//	request_id  chi's RequestID, so a failed store write can be matched
//	            to the request that caused it
//	remote      the client address after RealIP
//	route       the chi pattern ("/api/blog/{id}"), or the raw path when
//	            nothing matched
//	status, duration, bytes
//	session     how the cookie resolved, when an auth middleware ran
//
// 5xx responses log at ERROR, 4xx at WARN, everything else at INFO.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &logEntry{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), logEntryKey{}, entry)))

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			attrs := []slog.Attr{
				slog.String("request_id", chimw.GetReqID(r.Context())),
				slog.String("remote", r.RemoteAddr),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.written),
			}
			entry.mu.Lock()
			attrs = append(attrs, entry.attrs...)
			entry.mu.Unlock()

			logger.LogAttrs(r.Context(), levelFor(rec.status), "request completed", attrs...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
