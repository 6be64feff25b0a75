package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client token bucket limiters.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	// KeyHeader, when set and present on a request, identifies the client
	// instead of its remote address.
	KeyHeader string
	// IdleTTL drops limiters of clients not seen for this long.
	IdleTTL time.Duration
}

// RateLimitMiddleware gives every client its own token bucket.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiters := newClientLimiters(rate.Limit(cfg.RPS), cfg.Burst, cfg.IdleTTL)
	retryAfter := strconv.Itoa(int(math.Ceil(max(1, 1/cfg.RPS))))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.get(clientKey(r, cfg.KeyHeader)).Allow() {
				w.Header().Set("Retry-After", retryAfter)
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request, header string) string {
	if header != "" {
		if v := r.Header.Get(header); v != "" {
			return header + ":" + v
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiters(limit rate.Limit, burst int, ttl time.Duration) *clientLimiters {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &clientLimiters{
		limit:     limit,
		burst:     burst,
		ttl:       ttl,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (c *clientLimiters) get(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) > c.ttl {
		for k, cl := range c.clients {
			if now.Sub(cl.lastSeen) > c.ttl {
				delete(c.clients, k)
			}
		}
		c.lastSweep = now
	}

	cl, ok := c.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}
