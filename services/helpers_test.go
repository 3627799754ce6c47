package services

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"authpay/models"
	"authpay/store"
)

type testEnv struct {
	store    *store.Memory
	sessions *store.MemorySessions
	gateway  *FakeGateway
	auth     *AuthService
	mfa      *MFAService
	payments *PaymentService
	webhooks *WebhookService
	log      *logrus.Logger
	hook     *logtest.Hook
}

const testWebhookSecret = "whsec_test"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	st := store.NewMemory()
	sessions := store.NewMemorySessions()
	gw := NewFakeGateway()
	auth := NewAuthService(st, sessions, gw, NewTokenIssuer("test-secret"), nil, 24*time.Hour, log)

	return &testEnv{
		store:    st,
		sessions: sessions,
		gateway:  gw,
		auth:     auth,
		mfa:      NewMFAService(st, "API"),
		payments: NewPaymentService(st, auth, gw, log),
		webhooks: NewWebhookService(st, gw, nil, testWebhookSecret, log),
		log:      log,
		hook:     hook,
	}
}

func (e *testEnv) register(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), RegisterInput{Email: email, Password: "password123", Name: "Test User"})
	require.NoError(t, err)
	return u
}

func (e *testEnv) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func requireStatus(t *testing.T, err error, status int, msg string) {
	t.Helper()
	require.Error(t, err)
	gotStatus, gotMsg := StatusOf(err)
	require.Equal(t, status, gotStatus, "error: %v", err)
	if msg != "" {
		require.Equal(t, msg, gotMsg)
	}
}
