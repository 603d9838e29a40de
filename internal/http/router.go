// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-notification-actions/docs"
	"github.com/tbourn/go-notification-actions/internal/cache"
	"github.com/tbourn/go-notification-actions/internal/config"
	"github.com/tbourn/go-notification-actions/internal/gateway"
	"github.com/tbourn/go-notification-actions/internal/http/handlers"
	"github.com/tbourn/go-notification-actions/internal/http/middleware"
	"github.com/tbourn/go-notification-actions/internal/overrides"
	"github.com/tbourn/go-notification-actions/internal/repo"
	"github.com/tbourn/go-notification-actions/internal/services"
)

// Deps groups the injected collaborators the HTTP layer hands to services.
// Cache and Invalidator are usually the same object (Redis or in-memory);
// keeping them separate lets a deployment disable reads while still fanning
// out invalidation signals.
type Deps struct {
	Gateway     gateway.RemoteGateway
	Overrides   *overrides.Store
	Cache       cache.NotificationCache
	Invalidator cache.Invalidator
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), idempotency and rate limiting,
// CORS and security headers, health and metrics endpoints, and the versioned
// public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with identifier scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Response compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// Services assume non-nil cache collaborators.
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory()
	}
	if deps.Invalidator == nil {
		deps.Invalidator = cache.NoopInvalidator{}
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression (clients opt in via Accept-Encoding)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, target, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, target, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← gateway/db/cache
	actionSvc := &services.ActionsService{
		DB:              db,
		Gateway:         deps.Gateway,
		Overrides:       deps.Overrides,
		Invalidator:     deps.Invalidator,
		CallTimeout:     cfg.Gateway.Timeout,
		MaxContentRunes: cfg.MaxContentRunes,
	}
	notifSvc := &services.NotificationService{
		DB:          db,
		Cache:       deps.Cache,
		Invalidator: deps.Invalidator,
		CacheTTL:    cfg.Redis.TTL,
	}
	h := handlers.New(actionSvc, notifSvc, db, cfg.IdempotencyTTL)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Site actions
		api.POST("/sites/:site/follows", h.FollowSite)
		api.DELETE("/sites/:site/follows", h.UnfollowSite)

		// Comment actions
		api.POST("/sites/:site/comments/:comment/replies", h.ReplyToComment)
		api.PUT("/sites/:site/comments/:comment", h.UpdateComment)
		api.POST("/sites/:site/comments/:comment/likes", h.LikeComment)
		api.DELETE("/sites/:site/comments/:comment/likes", h.UnlikeComment)
		api.POST("/sites/:site/comments/:comment/approval", h.ApproveComment)
		api.DELETE("/sites/:site/comments/:comment/approval", h.UnapproveComment)
		api.POST("/sites/:site/comments/:comment/spam", h.SpamComment)
		api.DELETE("/sites/:site/comments/:comment", h.DeleteComment)

		// Notification stream
		api.POST("/notifications", h.IngestNotification)
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/:id", h.GetNotification)
		api.PUT("/notifications/:id/read", h.SetNotificationRead)
		api.POST("/notifications/seen", h.MarkNotificationsSeen)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
