package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-notification-actions/internal/cache"
	"github.com/tbourn/go-notification-actions/internal/config"
	"github.com/tbourn/go-notification-actions/internal/domain"
	"github.com/tbourn/go-notification-actions/internal/http/middleware"
	"github.com/tbourn/go-notification-actions/internal/overrides"
)

// --- tiny fake gateway that always confirms ---
type okGateway struct{}

func (okGateway) FollowSite(context.Context, int64) error                       { return nil }
func (okGateway) UnfollowSite(context.Context, int64) error                     { return nil }
func (okGateway) ReplyToComment(context.Context, int64, int64, string) error    { return nil }
func (okGateway) UpdateComment(context.Context, int64, int64, string) error     { return nil }
func (okGateway) LikeComment(context.Context, int64, int64) error               { return nil }
func (okGateway) UnlikeComment(context.Context, int64, int64) error             { return nil }
func (okGateway) ApproveComment(context.Context, int64, int64) error            { return nil }
func (okGateway) UnapproveComment(context.Context, int64, int64) error          { return nil }
func (okGateway) SpamComment(context.Context, int64, int64) error               { return nil }
func (okGateway) DeleteComment(context.Context, int64, int64) error             { return nil }

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Notification{}, &domain.CommentRecord{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testDeps() Deps {
	mem := cache.NewMemory()
	return Deps{
		Gateway:     okGateway{},
		Overrides:   overrides.NewStore(),
		Cache:       mem,
		Invalidator: mem,
	}
}

func testConfig(basePath string) config.Config {
	return config.Config{
		APIBasePath:    basePath,
		RateRPS:        100,
		RateBurst:      10,
		Gateway:        config.GatewayConfig{Timeout: 2 * time.Second},
		Redis:          config.RedisConfig{TTL: time.Minute},
		IdempotencyTTL: time.Minute,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), testDeps(), testConfig("/api/v1"))

	// /health works
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, newTestDB(t), testDeps(), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_ActionRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps := testDeps()
	RegisterRoutes(r, newTestDB(t), deps, testConfig("/api/v1"))

	// Follow a site through the full stack: middleware, handler, orchestrator,
	// gateway, override store.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sites/7/follows", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST follows = %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if resp["ok"] != true || resp["action"] != "follow" {
		t.Fatalf("resp = %v", resp)
	}

	k := overrides.Key{Entity: "site:7", Action: "follow"}
	if v, okv := deps.Overrides.Bool(k); !okv || !v {
		t.Fatal("follow override not persisted through the stack")
	}
}

func TestRegisterRoutes_NotificationsList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, testDeps(), testConfig("/api/v1"))

	n := &domain.Notification{
		ID:     uuid.NewString(),
		UserID: "u1",
		SiteID: 7,
		Type:   domain.TypeFollow,
	}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET notifications = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(n.ID)) {
		t.Fatalf("seeded notification missing from list: %s", w.Body.String())
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRegisterRoutes_IdempotencyCallback_MissAndHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, testDeps(), testConfig("/api/v1"))

	const userID = "u1"
	const key = "key-hit"

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sites/9/follows", nil)
		req.Header.Set("X-User-ID", userID)
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		return w
	}

	// MISS: no record yet, the action runs and records the key.
	if w := send(); w.Code != http.StatusOK {
		t.Fatalf("first follow = %d", w.Code)
	}

	// HIT: the retry is answered as a replay.
	w := send()
	if w.Code != http.StatusOK {
		t.Fatalf("retry = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"replayed":true`)) {
		t.Fatalf("retry not flagged as replay: %s", w.Body.String())
	}
}

func TestRegisterRoutes_IdempotencyCallback_ErrorBranch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, testDeps(), testConfig("/api/v1"))

	// Force lookups to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	// The lookup error is swallowed; the middleware treats it as a miss and
	// the request proceeds (405 for POST /health via NoMethod).
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set(middleware.HeaderIdempotencyKey, "force-error")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
