package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"authpay/models"
)

// Memory is a map-backed Store. Records are copied in and out so callers
// never share pointers with the maps.
type Memory struct {
	mu            sync.RWMutex
	users         map[string]models.User
	products      map[string]models.Product
	payments      map[string]models.Payment
	subscriptions map[string]models.Subscription
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]models.User),
		products:      make(map[string]models.Product),
		payments:      make(map[string]models.Payment),
		subscriptions: make(map[string]models.Subscription),
	}
}

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetUserByProvider(_ context.Context, provider, providerUserID string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.AuthProvider == provider && u.ProviderUserID == providerUserID {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	// Credits only move through AddCredits.
	u.Credits = existing.Credits
	u.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) AddCredits(_ context.Context, userID string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	u.Credits += delta
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return u.Credits, nil
}

func (m *Memory) CreateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.products {
		if existing.Name == p.Name {
			return ErrDuplicate
		}
	}
	m.products[p.ID] = cloneProduct(*p)
	return nil
}

func (m *Memory) ListProducts(_ context.Context) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetProduct(_ context.Context, id string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func (m *Memory) GetProductByName(_ context.Context, name string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.products {
		if p.Name == name {
			p = cloneProduct(p)
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *Memory) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) ListPayments(_ context.Context, userID string) ([]models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Payment{}
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateSubscription(_ context.Context, s *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.subscriptions {
		if existing.StripeSubscriptionID == s.StripeSubscriptionID {
			return ErrDuplicate
		}
	}
	m.subscriptions[s.ID] = *s
	return nil
}

func (m *Memory) ListSubscriptions(_ context.Context, userID string) ([]models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Subscription{}
	for _, s := range m.subscriptions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentPeriodStart.After(out[j].CurrentPeriodStart) })
	return out, nil
}

func cloneProduct(p models.Product) models.Product {
	if p.Metadata != nil {
		md := make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			md[k] = v
		}
		p.Metadata = md
	}
	if p.PriceCents != nil {
		price := *p.PriceCents
		p.PriceCents = &price
	}
	return p
}

// MemorySessions keeps sessions in a map. Expired entries are dropped by Sweep.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]models.Session)}
}

func (m *MemorySessions) CreateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = *s
	return nil
}

func (m *MemorySessions) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemorySessions) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// Sweep removes sessions that expired before now and returns how many were dropped.
func (m *MemorySessions) Sweep(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
