package main

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/config"
	"github.com/weilazy/danmu-proxy/pkg/store"
)

// adminPaths bypass the token gate and the path normalization.
var adminPaths = []string{
	"/favicon.ico",
	"/robots.txt",
	"/api/login",
	"/api/logout",
	"/api/config",
	"/api/logs",
}

func isAdminPath(path string) bool {
	if path == "/" {
		return true
	}
	for _, admin := range adminPaths {
		if path == admin || strings.HasPrefix(path, admin+"/") {
			return true
		}
	}
	return false
}

// createGateMiddleware enforces the URL token prefix and normalizes the path.
// With the default token the prefix is optional; otherwise the first path
// segment must equal it. Repeated /api/v2/ prefixes (players sometimes
// misconfigure the server URL) collapse into one.
func createGateMiddleware(cfg *config.Registry, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// A restarted route already passed the gate.
		if c.Locals("gated") != nil {
			return c.Next()
		}
		path := c.Path()
		if isAdminPath(path) {
			return c.Next()
		}

		token := cfg.Current().Token
		stripped, ok := stripToken(path, token)
		if !ok {
			logger.Debug("Rejected request with bad token", zap.String("path", path))
			return errorResponse(c, fiber.StatusUnauthorized, "invalid token")
		}

		normalized := normalizePath(stripped)
		c.Locals("gated", true)
		if normalized != path {
			c.Path(normalized)
			return c.RestartRouting()
		}
		return c.Next()
	}
}

// stripToken removes the token prefix from the path. The default token makes
// the prefix optional; any other token is required.
func stripToken(path, token string) (string, bool) {
	prefix := "/" + token
	if path == prefix {
		return "/", true
	}
	if strings.HasPrefix(path, prefix+"/") {
		return strings.TrimPrefix(path, prefix), true
	}
	return path, token == config.DefaultToken
}

// normalizePath guarantees the final path carries exactly one /api/v2
// prefix: repeated prefixes collapse, a missing one is prepended. The bare
// root is left alone.
func normalizePath(path string) string {
	if path == "/" {
		return path
	}
	rest := path
	for rest == "/api/v2" || strings.HasPrefix(rest, "/api/v2/") {
		rest = strings.TrimPrefix(rest, "/api/v2")
	}
	return "/api/v2" + rest
}

// rateLimiter is the per-IP sliding 60-second window for the comment
// endpoints. Expired slots are pruned lazily on each hit.
type rateLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{history: map[string][]time.Time{}, now: time.Now}
}

// allow records a hit for ip and reports whether it stays under max.
func (r *rateLimiter) allow(ip string, max int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-time.Minute)
	kept := r.history[ip][:0]
	for _, ts := range r.history[ip] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	// Drop idle IPs entirely so the map doesn't grow without bound.
	for otherIP, slots := range r.history {
		if otherIP != ip && len(slots) > 0 && !slots[len(slots)-1].After(cutoff) {
			delete(r.history, otherIP)
		}
	}
	if len(kept) >= max {
		r.history[ip] = kept
		return false
	}
	r.history[ip] = append(kept, now)
	return true
}

// createRateLimitMiddleware guards the comment endpoints only; everything
// else passes through untouched.
func createRateLimitMiddleware(cfg *config.Registry, limiter *rateLimiter, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		max := cfg.Current().RateLimitMaxRequests
		if max <= 0 || !strings.HasPrefix(c.Path(), "/api/v2/comment") {
			return c.Next()
		}
		ip := clientIP(c)
		if !limiter.allow(ip, max) {
			logger.Warn("Rate limited", zap.String("ip", ip))
			return c.SendStatus(fiber.StatusTooManyRequests)
		}
		return c.Next()
	}
}

// clientIP reads the address in proxy-aware order: X-Forwarded-For first
// entry, then X-Real-IP, then the peer itself.
func clientIP(c *fiber.Ctx) string {
	ip := c.Get("X-Forwarded-For")
	if idx := strings.Index(ip, ","); idx >= 0 {
		ip = ip[:idx]
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = strings.TrimSpace(c.Get("X-Real-IP"))
	}
	if ip == "" {
		ip = c.IP()
	}
	return strings.TrimPrefix(ip, "::ffff:")
}

// createStorageCheckMiddleware runs the one-time persistence availability
// check on the first real request. Browser noise (favicon, robots) must not
// wake the database.
func createStorageCheckMiddleware(db *store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Path() {
		case "/favicon.ico", "/robots.txt":
			return c.Next()
		}
		db.Check()
		return c.Next()
	}
}
