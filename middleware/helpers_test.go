package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"authpay/models"
	"authpay/services"
	"authpay/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	store *store.Memory
	auth  *services.AuthService
	mfa   *services.MFAService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	st := store.NewMemory()
	auth := services.NewAuthService(st, store.NewMemorySessions(), services.NewFakeGateway(),
		services.NewTokenIssuer("test-secret"), nil, time.Hour, log)
	return &testEnv{store: st, auth: auth, mfa: services.NewMFAService(st, "API")}
}

func (e *testEnv) login(t *testing.T, email string) *models.UserProfile {
	t.Helper()
	ctx := context.Background()
	_, err := e.auth.Register(ctx, services.RegisterInput{Email: email, Password: "password123"})
	require.NoError(t, err)
	profile, err := e.auth.Login(ctx, email, "password123")
	require.NoError(t, err)
	return profile
}
