package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"authpay/config"
	"authpay/middleware"
	"authpay/models"
	"authpay/services"
	"authpay/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	api     *API
	router  *gin.Engine
	store   *store.Memory
	gateway *services.FakeGateway
}

func allFeatures() config.Features {
	return config.Features{MFAEnforced: true, TestEndpointsEnabled: true, UIEnabled: true}
}

func newTestServer(t *testing.T, features config.Features) *testServer {
	t.Helper()

	log, _ := logtest.NewNullLogger()
	st := store.NewMemory()
	gw := services.NewFakeGateway()
	auth := services.NewAuthService(st, store.NewMemorySessions(), gw, services.NewTokenIssuer("test-secret"), nil, 24*time.Hour, log)

	api := &API{
		Auth:       auth,
		MFA:        services.NewMFAService(st, "API"),
		Google:     services.NewGoogleService(services.GoogleConfig{}, auth, st, log),
		Payments:   services.NewPaymentService(st, auth, gw, log),
		Webhooks:   services.NewWebhookService(st, gw, nil, "", log),
		Features:   features,
		SessionTTL: 24 * time.Hour,
		BaseURL:    "http://localhost:8000",
		AppName:    "API",
		Log:        log,
	}
	r := gin.New()
	api.Routes(r)
	return &testServer{api: api, router: r, store: st, gateway: gw}
}

type reqOpt func(*http.Request)

func withSession(id string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: id}) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// signup registers a user through the API and returns the profile.
func (s *testServer) signup(t *testing.T, email string) models.UserProfile {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/register", gin.H{"email": email, "password": "password123", "name": "Alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p models.UserProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	decodeJSON(t, w, &body)
	msg, _ := body["error"].(string)
	return msg
}
