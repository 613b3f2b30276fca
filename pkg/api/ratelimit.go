package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/monitoroor/pkg/config"
	"golang.org/x/time/rate"
)

const (
	rateLimitCleanupInterval = 5 * time.Minute
	rateLimitEntryTTL        = 10 * time.Minute
)

// clientLimiter tracks one caller's token bucket. Dashboards and CI
// recorders share the same mechanism; the tier decides how generous the
// bucket is.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// tierLimiters holds per-IP limiters for one rate limit tier. Entries
// for idle callers are dropped after rateLimitEntryTTL.
type tierLimiters struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     rate.Limit
	burst   int
}

func newTierLimiters(requestsPerMinute int) *tierLimiters {
	tl := &tierLimiters{
		clients: make(map[string]*clientLimiter, 64),
		rps:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   requestsPerMinute, // A recorder may flush a batch at once.
	}

	go tl.cleanup()

	return tl
}

func (tl *tierLimiters) get(ip string) *rate.Limiter {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	entry, exists := tl.clients[ip]
	if !exists {
		limiter := rate.NewLimiter(tl.rps, tl.burst)
		tl.clients[ip] = &clientLimiter{
			limiter:  limiter,
			lastSeen: time.Now(),
		}

		return limiter
	}

	entry.lastSeen = time.Now()

	return entry.limiter
}

func (tl *tierLimiters) cleanup() {
	ticker := time.NewTicker(rateLimitCleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		tl.mu.Lock()

		for ip, entry := range tl.clients {
			if time.Since(entry.lastSeen) > rateLimitEntryTTL {
				delete(tl.clients, ip)
			}
		}

		tl.mu.Unlock()
	}
}

// rateLimitMiddleware returns a per-IP rate limiting middleware for
// the given tier configuration.
func (s *server) rateLimitMiddleware(
	tier config.RateLimitTier,
) func(http.Handler) http.Handler {
	limiters := newTierLimiters(tier.RequestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !limiters.get(ip).Allow() {
				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the caller's address, honoring the first hop in
// X-Forwarded-For when a reverse proxy sits in front.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
