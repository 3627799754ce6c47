package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authpay/models"
)

func TestRegister_RejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.register(t, "alice@example.com")
	assert.Equal(t, TierFree, u.SubscriptionTier)
	assert.Equal(t, int64(0), u.Credits)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "password123", u.PasswordHash)

	_, err := env.auth.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "other-password"})
	requireStatus(t, err, http.StatusBadRequest, "Email already registered")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthenticate_RejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice@example.com")

	_, err := env.auth.Authenticate(ctx, "alice@example.com", "wrong-password")
	requireStatus(t, err, http.StatusUnauthorized, "Incorrect email or password")

	_, err = env.auth.Authenticate(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrBadCredentials)

	u, err := env.auth.Authenticate(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
}

func TestAuthenticate_OAuthUserHasNoPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, RegisterInput{Email: "g@example.com", Provider: ProviderGoogle, ProviderUserID: "sub-1"})
	require.NoError(t, err)

	_, err = env.auth.Authenticate(ctx, "g@example.com", "")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestLogin_ReturnsProfileWithSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice@example.com")

	p, err := env.auth.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Len(t, p.SessionID, 64)
	assert.Equal(t, ProviderPassword, p.AuthMethod)
	assert.NotEmpty(t, p.AccessToken)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), p.SessionExpiry, time.Minute)

	sess, err := env.auth.ResolveToken(ctx, p.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, p.SessionID, sess.ID)
}

func TestResolveSession_ExpiredSessionIsDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice@example.com")

	sess, err := env.auth.CreateSession(ctx, u.ID, ProviderPassword)
	require.NoError(t, err)

	_, err = env.auth.ResolveSession(ctx, sess.ID)
	require.NoError(t, err)

	env.auth.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err = env.auth.ResolveSession(ctx, sess.ID)
	requireStatus(t, err, http.StatusUnauthorized, "Not authenticated")

	_, err = env.sessions.GetSession(ctx, sess.ID)
	assert.Error(t, err)
}

func TestResolveSession_Unknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.ResolveSession(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = env.auth.ResolveSession(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestResolveToken_SessionGoneAfterLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice@example.com")

	p, err := env.auth.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, env.auth.Logout(ctx, p.SessionID))

	_, err = env.auth.ResolveToken(ctx, p.AccessToken)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestProfile_RejectsForeignSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice@example.com")
	bob := env.register(t, "bob@example.com")

	sess, err := env.auth.CreateSession(ctx, bob.ID, ProviderPassword)
	require.NoError(t, err)

	_, err = env.auth.Profile(ctx, alice.ID, sess)
	requireStatus(t, err, http.StatusUnauthorized, "Invalid session")
}

func TestEnsureCustomer_CreatesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice@example.com")

	first, err := env.auth.EnsureCustomer(ctx, u.ID)
	require.NoError(t, err)
	assert.Contains(t, first, "cus_test_")

	second, err := env.auth.EnsureCustomer(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, env.user(t, u.ID).StripeCustomerID)
}

// creditingGateway credits the user while the customer is being created.
type creditingGateway struct {
	*FakeGateway
	credit func(userID string)
}

func (g *creditingGateway) CreateCustomer(ctx context.Context, userID, email, name string) (*models.Customer, error) {
	g.credit(userID)
	return g.FakeGateway.CreateCustomer(ctx, userID, email, name)
}

func TestEnsureCustomer_KeepsCreditsAddedMeanwhile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice@example.com")

	gw := &creditingGateway{FakeGateway: env.gateway, credit: func(userID string) {
		_, err := env.store.AddCredits(ctx, userID, 100)
		require.NoError(t, err)
	}}
	auth := NewAuthService(env.store, env.sessions, gw, NewTokenIssuer("test-secret"), nil, time.Hour, env.log)

	id, err := auth.EnsureCustomer(ctx, u.ID)
	require.NoError(t, err)

	stored := env.user(t, u.ID)
	assert.Equal(t, id, stored.StripeCustomerID)
	assert.Equal(t, int64(100), stored.Credits)
}
