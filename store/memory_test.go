package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authpay/models"
)

func newUser(id, email string) *models.User {
	now := time.Now().UTC()
	return &models.User{ID: id, Email: email, SubscriptionTier: "Free", CreatedAt: now, UpdatedAt: now}
}

func TestMemory_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateUser(ctx, newUser("u1", "a@example.com")))
	assert.ErrorIs(t, m.CreateUser(ctx, newUser("u2", "A@example.com")), ErrDuplicate)

	got, err := m.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	got.Name = "Alice"
	got.AuthProvider = "google"
	got.ProviderUserID = "sub-1"
	require.NoError(t, m.UpdateUser(ctx, got))

	byProvider, err := m.GetUserByProvider(ctx, "google", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", byProvider.Name)

	_, err = m.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.UpdateUser(ctx, newUser("missing", "x@example.com")), ErrNotFound)
}

func TestMemory_ReturnedUserIsACopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateUser(ctx, newUser("u1", "a@example.com")))

	got, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	got.Credits = 999

	again, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Credits)
}

func TestMemory_UpdateUserKeepsCredits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateUser(ctx, newUser("u1", "a@example.com")))

	stale, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)

	_, err = m.AddCredits(ctx, "u1", 100)
	require.NoError(t, err)

	stale.StripeCustomerID = "cus_1"
	stale.Credits = 0
	require.NoError(t, m.UpdateUser(ctx, stale))

	got, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Credits)
	assert.Equal(t, "cus_1", got.StripeCustomerID)
}

func TestMemory_AddCreditsConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateUser(ctx, newUser("u1", "a@example.com")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.AddCredits(ctx, "u1", 2)
		}()
	}
	wg.Wait()

	total, err := m.AddCredits(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)

	_, err = m.AddCredits(ctx, "nobody", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Products(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	price := int64(999)

	require.NoError(t, m.CreateProduct(ctx, &models.Product{ID: "p2", Name: "Team Subscription"}))
	require.NoError(t, m.CreateProduct(ctx, &models.Product{
		ID: "p1", Name: "Individual Subscription", PriceCents: &price,
		Metadata: map[string]string{models.MetaTier: "Individual"},
	}))
	assert.ErrorIs(t, m.CreateProduct(ctx, &models.Product{ID: "p3", Name: "Team Subscription"}), ErrDuplicate)

	list, err := m.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Individual Subscription", list[0].Name)

	list[0].Metadata[models.MetaTier] = "changed"
	p, err := m.GetProductByName(ctx, "Individual Subscription")
	require.NoError(t, err)
	assert.Equal(t, "Individual", p.Metadata[models.MetaTier])
	assert.Equal(t, int64(999), *p.PriceCents)

	require.NoError(t, m.DeleteProduct(ctx, "p1"))
	_, err = m.GetProduct(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteProduct(ctx, "p1"), ErrNotFound)
}

func TestMemory_PaymentsAndSubscriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	require.NoError(t, m.CreatePayment(ctx, &models.Payment{ID: "pay1", UserID: "u1", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, m.CreatePayment(ctx, &models.Payment{ID: "pay2", UserID: "u1", CreatedAt: now}))
	require.NoError(t, m.CreatePayment(ctx, &models.Payment{ID: "pay3", UserID: "u2", CreatedAt: now}))

	payments, err := m.ListPayments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "pay2", payments[0].ID)

	empty, err := m.ListPayments(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	sub := &models.Subscription{ID: "s1", UserID: "u1", StripeSubscriptionID: "sub_1", CurrentPeriodStart: now}
	require.NoError(t, m.CreateSubscription(ctx, sub))
	assert.ErrorIs(t, m.CreateSubscription(ctx, &models.Subscription{ID: "s2", StripeSubscriptionID: "sub_1"}), ErrDuplicate)

	subs, err := m.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestMemorySessions_Sweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessions()
	now := time.Now()

	require.NoError(t, s.CreateSession(ctx, &models.Session{ID: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateSession(ctx, &models.Session{ID: "dead", UserID: "u1", ExpiresAt: now.Add(-time.Second)}))

	n, err := s.Sweep(now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetSession(ctx, "dead")
	assert.ErrorIs(t, err, ErrNotFound)
	live, err := s.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "u1", live.UserID)

	require.NoError(t, s.DeleteSession(ctx, "live"))
	_, err = s.GetSession(ctx, "live")
	assert.ErrorIs(t, err, ErrNotFound)
}
