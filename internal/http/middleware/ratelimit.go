// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory, per-identity token-bucket rate limiter
// built on golang.org/x/time/rate. Buckets are created on demand and idle
// buckets are swept periodically so memory stays bounded.
//
// The limiter is process-local: for horizontally scaled deployments a
// distributed limiter (Redis-backed) is required to enforce a global limit.
// Replays detected by IdempotencyValidator bypass limiting so retried
// requests are served without consuming tokens.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket. The returned
// string must be stable for the duration of a request.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP prefers the authenticated user identity (Gin context key
// "userID") and falls back to the client IP. Keys are prefixed so the user
// and IP namespaces cannot collide.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// bucket pairs a limiter with its last-use time for idle eviction.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces per-key token-bucket limits. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size. burst values <= 0 are coerced to 1; rps 0 admits nothing.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		buckets:   make(map[string]*bucket),
		idleTTL:   10 * time.Minute,
		lastSweep: time.Now(),
	}
}

// get returns the limiter for key, creating it if absent. A sweep of idle
// buckets runs at most once per idleTTL, before the lookup, so a stale bucket
// for the requested key is evicted rather than refreshed.
func (rl *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that should skip limiting.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware enforcing the limit. Rejected requests
// get a 429 with the standard compact error body and a Retry-After header.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		if rl.get(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
