package api

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// requestID mirrors chi's middleware.RequestID but validates an incoming
// X-Request-ID header against spec §4.10's pattern rather than accepting
// it verbatim, generating a fresh UUID whenever it doesn't match.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// window is one client's fixed-window request count.
type window struct {
	count int
	start time.Time
}

// rateLimiter implements the fixed-window limiter from spec §4.10: at
// most rpm requests per 60s window per client identity.
type rateLimiter struct {
	rpm         int
	trustProxy  bool
	windowSize  time.Duration
	mu          sync.Mutex
	byClient    map[string]*window
	now         func() time.Time
}

func newRateLimiter(rpm int, trustProxy bool) *rateLimiter {
	return &rateLimiter{
		rpm:        rpm,
		trustProxy: trustProxy,
		windowSize: time.Minute,
		byClient:   make(map[string]*window),
		now:        time.Now,
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := rl.clientKey(r)
		allowed, retryAfter := rl.allow(client)
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limit", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *rateLimiter) allow(client string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.byClient[client]
	if !ok || now.Sub(w.start) >= rl.windowSize {
		rl.byClient[client] = &window{count: 1, start: now}
		return true, 0
	}

	w.count++
	if w.count > rl.rpm {
		remaining := rl.windowSize - now.Sub(w.start)
		return false, int(remaining.Seconds()) + 1
	}
	return true, 0
}

// clientKey identifies the caller by remote address, or by
// X-Forwarded-For/X-Real-IP when trustProxy is enabled.
func (rl *rateLimiter) clientKey(r *http.Request) string {
	if rl.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				fwd = fwd[:i]
			}
			return strings.TrimSpace(fwd)
		}
		if real := r.Header.Get("X-Real-IP"); real != "" {
			return real
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
