package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID_GeneratesNew(t *testing.T) {
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)

	var fromCtx string
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		fromCtx = RequestIDFromContext(c.Request.Context())
		c.String(http.StatusOK, GetRequestID(c))
	})

	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	r.ServeHTTP(w, c.Request)

	headerID := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, headerID)
	assert.Equal(t, headerID, w.Body.String())
	assert.Equal(t, headerID, fromCtx)
}

func TestRequestID_UsesExisting(t *testing.T) {
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)

	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	c.Request.Header.Set(RequestIDHeader, "existing-request-id-123")
	r.ServeHTTP(w, c.Request)

	assert.Equal(t, "existing-request-id-123", w.Body.String())
}

func TestLogger_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	r := gin.New()
	r.Use(RequestID(), Logger(log, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/health", "/ok", "/missing", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/boom", entries[2].ContextMap()["path"])
	assert.NotEmpty(t, entries[2].ContextMap()["request_id"])
}

func TestLogger_RedactsCredentialsInQuery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	r := gin.New()
	r.Use(Logger(log))
	r.GET("/api/v1/session/stream", func(c *gin.Context) { c.Status(http.StatusOK) })

	const secret = "eyJSECRET.jwt.sig"
	r.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/session/stream?access_token="+secret+"&lang=pt", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	for key, val := range entries[0].ContextMap() {
		assert.NotContains(t, fmt.Sprint(val), secret, "field %s leaks the token", key)
	}
	query := entries[0].ContextMap()["query"].(string)
	assert.Contains(t, query, "lang=pt")
	assert.Contains(t, query, "access_token=%5BREDACTED%5D")
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"redirect=true", "redirect=true"},
		{"Access_Token=abc", "Access_Token=%5BREDACTED%5D"},
		{"token=a&token=b", "token=%5BREDACTED%5D&token=%5BREDACTED%5D"},
		{"access_token=abc;x=%zz", redacted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactQuery(tt.raw), tt.raw)
	}
}

func TestCORS_Headers(t *testing.T) {
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)

	r.Use(CORS())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	c.Request.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, c.Request)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_AllowList(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://garage.example"}
	cfg.AllowCredentials = true

	r := gin.New()
	r.Use(CORSWithConfig(cfg))
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	tests := []struct {
		origin string
		want   string
	}{
		{"https://garage.example", "https://garage.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)

	reached := false
	r.Use(CORS())
	r.OPTIONS("/test", func(c *gin.Context) { reached = true })

	c.Request = httptest.NewRequest(http.MethodOptions, "/test", nil)
	c.Request.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, c.Request)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, reached)
}

// memRedis is an in-memory RedisClient; TTLs are ignored
type memRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemRedis() *memRedis { return &memRedis{data: map[string]string{}} }

func (m *memRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (m *memRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func idempotentRouter(store RedisClient, status *int, calls *int) *gin.Engine {
	r := gin.New()
	r.POST("/events", Idempotency(DefaultIdempotencyConfig(store)), func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"accepted": *calls})
	})
	return r
}

func postEvent(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	status, calls := http.StatusAccepted, 0
	r := idempotentRouter(newMemRedis(), &status, &calls)

	first := postEvent(r, "evt-1", `{"event":"SIGNED_IN"}`)
	second := postEvent(r, "evt-1", `{"event":"SIGNED_IN"}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestIdempotency_KeyReusedWithDifferentBody(t *testing.T) {
	status, calls := http.StatusAccepted, 0
	r := idempotentRouter(newMemRedis(), &status, &calls)

	postEvent(r, "evt-1", `{"event":"SIGNED_IN"}`)
	w := postEvent(r, "evt-1", `{"event":"SIGNED_OUT"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_InProgress(t *testing.T) {
	store := newMemRedis()
	status, calls := http.StatusAccepted, 0
	r := idempotentRouter(store, &status, &calls)

	rec := `{"key":"evt-1","status":"processing","request_hash":"` +
		requestHash(http.MethodPost, "/events", []byte(`{}`)) + `"}`
	store.data[IdempotencyKeyPrefix+"evt-1"] = rec

	w := postEvent(r, "evt-1", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, calls)
}

func TestIdempotency_ServerErrorIsRetryable(t *testing.T) {
	store := newMemRedis()
	status, calls := http.StatusInternalServerError, 0
	r := idempotentRouter(store, &status, &calls)

	postEvent(r, "evt-1", `{}`)
	assert.Empty(t, store.data)

	status = http.StatusAccepted
	w := postEvent(r, "evt-1", `{}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_NoKeyAndRedisDown(t *testing.T) {
	status, calls := http.StatusAccepted, 0

	r := idempotentRouter(newMemRedis(), &status, &calls)
	postEvent(r, "", `{}`)
	postEvent(r, "", `{}`)
	assert.Equal(t, 2, calls)

	down := newMemRedis()
	down.err = errors.New("connection refused")
	r = idempotentRouter(down, &status, &calls)
	w := postEvent(r, "evt-1", `{}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 3, calls)
}

func TestIdempotency_Required(t *testing.T) {
	cfg := DefaultIdempotencyConfig(newMemRedis())
	cfg.Required = true

	r := gin.New()
	r.POST("/events", Idempotency(cfg), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := postEvent(r, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
