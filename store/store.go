// Package store persists users, sessions and billing records.
//
// The in-memory implementations are the default; PostgreSQL and Redis
// back the same interfaces when DATABASE_URL / REDIS_URL are configured.
package store

import (
	"context"
	"errors"

	"authpay/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByProvider(ctx context.Context, provider, providerUserID string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	// AddCredits adjusts the user's credit counter and returns the new balance.
	AddCredits(ctx context.Context, userID string, delta int64) (int64, error)

	CreateProduct(ctx context.Context, p *models.Product) error
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProductByName(ctx context.Context, name string) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, userID string) ([]models.Payment, error)

	CreateSubscription(ctx context.Context, s *models.Subscription) error
	ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}
