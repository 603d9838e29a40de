// Package main boots the notification actions service: configuration, logging,
// tracing, the local object store, the notification cache, the remote gateway
// client, and the HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-notification-actions/internal/cache"
	"github.com/tbourn/go-notification-actions/internal/config"
	"github.com/tbourn/go-notification-actions/internal/gateway"
	httpapi "github.com/tbourn/go-notification-actions/internal/http"
	"github.com/tbourn/go-notification-actions/internal/observability"
	"github.com/tbourn/go-notification-actions/internal/overrides"
	"github.com/tbourn/go-notification-actions/internal/repo"
	"github.com/tbourn/go-notification-actions/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting notification actions service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	deps := buildDeps(ctx, cfg)

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server failed")
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

// buildDeps assembles the injected runtime dependencies. The cache backend is
// Redis when configured, otherwise the in-process memory cache; both expose
// the same read-through and invalidation surface.
func buildDeps(ctx context.Context, cfg config.Config) httpapi.Deps {
	deps := httpapi.Deps{
		Gateway:   gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout),
		Overrides: overrides.NewStore(),
	}

	if cfg.Redis.Enabled {
		rc := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pctx); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
		}
		deps.Cache = rc
		deps.Invalidator = rc
		log.Info().Str("addr", cfg.Redis.Addr).Msg("notification cache: redis")
		return deps
	}

	mem := cache.NewMemory()
	deps.Cache = mem
	deps.Invalidator = mem
	log.Info().Msg("notification cache: in-memory")
	return deps
}
