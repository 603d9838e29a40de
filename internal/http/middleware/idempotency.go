// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for the action endpoints. Every
// action POST/DELETE may carry an Idempotency-Key header; the middleware
// validates it, stashes the normalized key in the request context, and
// consults a pluggable lookup to detect a previously completed request for
// the same (user, operation, key) tuple. Detected replays are flagged so the
// handler can short-circuit the remote action and the rate limiter can skip
// the request.
//
// The operation identity is the method plus the registered route ("target"),
// so one key can safely be reused across distinct operations: a retry of
// "POST /sites/:site/follows" never collides with "DELETE /sites/:site/follows"
// carrying the same key.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header clients use to convey
// an idempotency key for unsafe operations. Its value is expected to be
// stable for a given semantic operation so retries deduplicate safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored replay exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// GetIdempotencyKey returns the validated idempotency key stored by
// IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request replays a previously completed
// operation. Handlers use it to return the recorded result without
// re-issuing the remote action.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyTarget is the operation identity idempotency records are keyed
// by: the HTTP method plus the registered route, e.g.
// "POST /api/v1/sites/:site/comments/:comment/likes". Unmatched routes fall
// back to the raw URL path.
func IdempotencyTarget(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}

// IdempotencyOptions configures header validation. TTL enforcement belongs in
// the lookup, not here.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil selects a conservative
	// RFC7230-like token pattern: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a still-valid record exists for
// (userID, target, key) at the given time. Lookup failures should be
// returned as errors, not treated as replays; they never block processing.
type IdempotencyLookup func(ctx context.Context, userID, target, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes it, and marks detected replays for handler short-circuit and
// rate-limit bypass. Requests without the header pass through untouched;
// invalid keys get a 400 with the standard compact error body.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			uid := userIDFromCtx(c)
			target := IdempotencyTarget(c)
			now := time.Now().UTC()

			if exists, _ := lookup(c.Request.Context(), uid, target, key, now); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx extracts the user identifier set by upstream authentication,
// falling back to the X-User-ID header. It must resolve the same identity the
// handlers use, or stored keys would never match on retry. A
// development-friendly "demo-user" fallback is returned when no identity is
// available.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
		return h
	}
	return "demo-user"
}
