package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authpay/models"
)

func setupRedisSessions(t *testing.T) (*RedisSessions, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	s, err := NewRedisSessions(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create redis sessions: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		mr.Close()
	})
	return s, mr
}

func TestRedisSessions_ExpireWithTTL(t *testing.T) {
	s, mr := setupRedisSessions(t)
	ctx := context.Background()

	sess := &models.Session{ID: "abc", UserID: "u1", AuthMethod: "password", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreateSession(ctx, sess))

	ttl := mr.TTL("session:abc")
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl %s", ttl)

	got, err := s.GetSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	mr.FastForward(2 * time.Hour)
	_, err = s.GetSession(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisSessions_Delete(t *testing.T) {
	s, _ := setupRedisSessions(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &models.Session{ID: "abc", UserID: "u1", ExpiresAt: time.Now().Add(time.Minute)}))
	require.NoError(t, s.DeleteSession(ctx, "abc"))

	_, err := s.GetSession(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisSessions_CorruptValue(t *testing.T) {
	s, mr := setupRedisSessions(t)

	require.NoError(t, mr.Set("session:bad", "not-json"))
	_, err := s.GetSession(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, mr.Exists("session:bad"))
}

func TestNewRedisSessions_BadURL(t *testing.T) {
	_, err := NewRedisSessions(context.Background(), "://nope")
	assert.Error(t, err)
}
