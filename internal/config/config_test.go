package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q, want /api/v1", cfg.APIBasePath)
	}
	if cfg.Gateway.Timeout != 10*time.Second {
		t.Errorf("Gateway.Timeout = %v, want 10s", cfg.Gateway.Timeout)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled defaults to false")
	}
	if cfg.Redis.KeyPrefix != "notif:cache:" {
		t.Errorf("Redis.KeyPrefix = %q", cfg.Redis.KeyPrefix)
	}
	if cfg.MaxContentRunes != 5000 {
		t.Errorf("MaxContentRunes = %d, want 5000", cfg.MaxContentRunes)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("IdempotencyTTL = %v, want 24h", cfg.IdempotencyTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("API_BASE_PATH", "v2/")
	t.Setenv("GATEWAY_BASE_URL", "https://api.example.com/v1/")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("REDIS_ENABLED", "yes")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (normalized)", cfg.LogLevel)
	}
	if cfg.APIBasePath != "/v2" {
		t.Errorf("APIBasePath = %q, want /v2", cfg.APIBasePath)
	}
	if strings.HasSuffix(cfg.Gateway.BaseURL, "/") {
		t.Errorf("Gateway.BaseURL = %q, want trailing slash stripped", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.Timeout != 3*time.Second {
		t.Errorf("Gateway.Timeout = %v", cfg.Gateway.Timeout)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.RateRPS != 2.5 {
		t.Errorf("RateRPS = %v", cfg.RateRPS)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORS.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.CORS.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.CORS.AllowedOrigins[i] != want[i] {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.CORS.AllowedOrigins[i], want[i])
		}
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"zero content cap", "MAX_CONTENT_RUNES", "0"},
		{"zero burst", "RATE_BURST", "0"},
		{"sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5"},
		{"negative rps", "RATE_RPS", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_RedisEnabledRequiresAddr(t *testing.T) {
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "  ")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted enabled Redis without an address")
	}
}

func TestLoad_InvalidGinModeFallsBack(t *testing.T) {
	t.Setenv("GIN_MODE", "weird")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q, want release", cfg.GinMode)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
