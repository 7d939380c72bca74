package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/ourworld/internal/metrics"
)

// maxLimiterEntries bounds the limiter table; the least recently seen IP is
// evicted first.
const maxLimiterEntries = 10000

// RateLimiter throttles requests per client IP with a token bucket.
//
// It guards the login endpoint: the whole app sits behind one shared
// password, so unthrottled guessing is the obvious attack. RealIP runs
// first: RemoteAddr holds the forwarded client address only when the
// request came through a trusted proxy, and the connection address
// otherwise, so a caller cannot pick a fresh bucket by sending a new
// X-Forwarded-For.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter allows perSecond requests per IP on average with bursts of
// up to burst. Entries idle for longer than idle are dropped by Prune.
func NewRateLimiter(perSecond float64, burst int, idle time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

// Middleware answers 429 once the caller's bucket is empty.
func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientIP(r)) {
				metrics.ObserveLogin("throttled")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "5")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate_limited","message":"Too many attempts, try again shortly"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Run prunes idle entries every interval until ctx is cancelled.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// Prune drops limiters that have not been used for the idle period.
func (l *RateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	removed := 0
	for ip, e := range l.limiters {
		if e.lastAccess.Before(cutoff) {
			delete(l.limiters, ip)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= maxLimiterEntries {
			l.evictOldest()
		}
		e = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = e
	}
	e.lastAccess = now
	return e.limiter.AllowN(now, 1)
}

func (l *RateLimiter) evictOldest() {
	var oldestIP string
	var oldest time.Time
	for ip, e := range l.limiters {
		if oldestIP == "" || e.lastAccess.Before(oldest) {
			oldestIP, oldest = ip, e.lastAccess
		}
	}
	delete(l.limiters, oldestIP)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
