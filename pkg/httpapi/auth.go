// Copyright 2025 Certen Protocol
//
// API-key tiering and fixed-window rate limiting.
// Adapted from pkg/server's token-bucket RateLimiter/APIKeyValidator shape,
// generalised to a fixed window with per-tier caps.

package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/certen/astral-location-services/pkg/config"
)

const (
	tierPublic    = "public"
	tierDeveloper = "developer"
	tierInternal  = "internal"
)

// resolveTier extracts an API key from the request and resolves its tier.
// An absent key is never an error and falls through to the public tier; a
// present-but-unknown key is unauthorised.
func resolveTier(r *http.Request, keys map[string]config.APIKeyRecord) (tier, apiKey string, ok bool) {
	apiKey = extractAPIKey(r)
	if apiKey == "" {
		return tierPublic, "", true
	}
	rec, known := keys[apiKey]
	if !known {
		return "", apiKey, false
	}
	return rec.Tier, apiKey, true
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func rateLimitKey(apiKey, remoteAddr string) string {
	if apiKey != "" {
		return "key:" + apiKey
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return "ip:" + host
}

// fixedWindowLimiter enforces one cap per key over a fixed wall-clock
// window; the window resets (rather than sliding) when it elapses.
type fixedWindowLimiter struct {
	window time.Duration
	mu     sync.Mutex
	counts map[string]*windowCounter
}

type windowCounter struct {
	count      int
	windowOpen time.Time
}

func newFixedWindowLimiter(window time.Duration) *fixedWindowLimiter {
	return &fixedWindowLimiter{window: window, counts: make(map[string]*windowCounter)}
}

// allow reports whether the request under key is within cap for the
// current window, and returns the remaining quota and reset time.
func (l *fixedWindowLimiter) allow(key string, limit int, now time.Time) (allowed bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counts[key]
	if !ok || now.Sub(c.windowOpen) >= l.window {
		c = &windowCounter{count: 0, windowOpen: now}
		l.counts[key] = c
	}

	reset = c.windowOpen.Add(l.window)
	if c.count >= limit {
		return false, 0, reset
	}
	c.count++
	return true, limit - c.count, reset
}

func capFor(tier string, cfg *config.Config) int {
	switch tier {
	case tierDeveloper:
		return cfg.RateLimitDeveloper
	case tierInternal:
		return cfg.RateLimitInternal
	default:
		return cfg.RateLimitPublic
	}
}
