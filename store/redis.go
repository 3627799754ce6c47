package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"authpay/models"
)

// RedisSessions keeps sessions as JSON values that Redis expires on its own.
type RedisSessions struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessions connects to redisURL and checks the connection.
func NewRedisSessions(ctx context.Context, redisURL string) (*RedisSessions, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSessions{client: client, now: time.Now}, nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func (r *RedisSessions) CreateSession(ctx context.Context, s *models.Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return r.client.Set(ctx, sessionKey(s.ID), data, ttl).Err()
}

func (r *RedisSessions) GetSession(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		r.client.Del(ctx, sessionKey(id))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessions) DeleteSession(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}

func (r *RedisSessions) Close() error {
	return r.client.Close()
}
