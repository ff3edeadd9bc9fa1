package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	clients   map[string]*ipLimiter
	lastPrune time.Time
}

// NewRateLimiter allows rps requests per second per IP with the given burst.
// Limiters unused for longer than idle are dropped; the client map is scanned at most
// once per idle/2.
func NewRateLimiter(rps, burst int, idle time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		clients: make(map[string]*ipLimiter),
	}
}

// Allow reports whether a request from ip may proceed now.
func (r *RateLimiter) Allow(ip string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idle > 0 && now.Sub(r.lastPrune) >= r.idle/2 {
		r.prune(now)
	}

	l, ok := r.clients[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.clients[ip] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

func (r *RateLimiter) prune(now time.Time) {
	for k, l := range r.clients {
		if now.Sub(l.lastSeen) > r.idle {
			delete(r.clients, k)
		}
	}
	r.lastPrune = now
}

// Handler rejects requests over the limit with 429.
func (r *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" || c.Path() == "/healthz" {
			return c.Next()
		}
		if !r.Allow(c.IP(), time.Now()) {
			c.Set(fiber.HeaderRetryAfter, "1")
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		}
		return c.Next()
	}
}
