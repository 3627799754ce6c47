package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authpay/config"
	"authpay/services"
	"authpay/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:       "API",
		BaseURL:       "http://localhost:8000",
		SessionTTL:    24 * time.Hour,
		CORSOrigins:   []string{"http://app.example.com"},
		AuthRateLimit: 100,
		AuthRateBurst: 100,
		SweepInterval: time.Minute,
	}
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, newLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, newLogger("loud").GetLevel())
}

func TestOpenBackends_Memory(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	b, err := openBackends(context.Background(), testConfig(), log)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.Memory{}, b.store)
	assert.IsType(t, &store.MemorySessions{}, b.sessions)
	assert.NotNil(t, b.sweep)
}

func TestOpenBackends_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	log, _ := logtest.NewNullLogger()
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	b, err := openBackends(context.Background(), cfg, log)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.RedisSessions{}, b.sessions)
	assert.Nil(t, b.sweep)
}

func TestNewGateway_TestMode(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	cfg := testConfig()
	assert.IsType(t, &services.FakeGateway{}, newGateway(cfg, log))

	cfg.Stripe.SecretKey = "sk_live_abc"
	assert.IsType(t, &services.StripeGateway{}, newGateway(cfg, log))
}

func TestNewServer(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	cfg := testConfig()
	b, err := openBackends(context.Background(), cfg, log)
	require.NoError(t, err)
	h := newServer(cfg, b, services.NewFakeGateway(), log)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `authpay_http_requests_total{method="GET",path="/health",status="200"} 1`)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "http://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
