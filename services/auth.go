package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"authpay/models"
	"authpay/store"
)

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

type AuthService struct {
	store    store.Store
	sessions store.SessionStore
	gateway  Gateway
	tokens   *TokenIssuer
	notifier *Notifier
	ttl      time.Duration
	log      *logrus.Logger
	now      func() time.Time
}

func NewAuthService(st store.Store, sessions store.SessionStore, gw Gateway, tokens *TokenIssuer,
	notifier *Notifier, ttl time.Duration, log *logrus.Logger) *AuthService {
	return &AuthService{
		store:    st,
		sessions: sessions,
		gateway:  gw,
		tokens:   tokens,
		notifier: notifier,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Email          string
	Password       string
	Name           string
	Avatar         string
	Provider       string
	ProviderUserID string
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.TrimSpace(in.Email)
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	provider := in.Provider
	if provider == "" {
		provider = ProviderPassword
	}

	now := s.now().UTC()
	u := &models.User{
		ID:               uuid.NewString(),
		Email:            email,
		Name:             in.Name,
		Avatar:           in.Avatar,
		AuthProvider:     provider,
		ProviderUserID:   in.ProviderUserID,
		SubscriptionTier: TierFree,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": u.ID, "provider": provider}).Info("User registered")
	if s.notifier != nil {
		go s.notifier.SendWelcome(*u)
	}
	return u, nil
}

func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBadCredentials
	} else if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *AuthService) CreateSession(ctx context.Context, userID, method string) (*models.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	sess := &models.Session{
		ID:         id,
		UserID:     userID,
		AuthMethod: method,
		ExpiresAt:  s.now().UTC().Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// ResolveSession returns the live session for id. Expired sessions are removed.
func (s *AuthService) ResolveSession(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrNotAuthenticated
	}
	sess, err := s.sessions.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotAuthenticated
	} else if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(s.now()) {
		if err := s.sessions.DeleteSession(ctx, id); err != nil {
			s.log.WithError(err).Warn("Failed to delete expired session")
		}
		return nil, ErrNotAuthenticated
	}
	return sess, nil
}

// ResolveToken validates a bearer token and the session it names.
func (s *AuthService) ResolveToken(ctx context.Context, raw string) (*models.Session, error) {
	userID, sessionID, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	sess, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrInvalidSession
	}
	return sess, nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string, sess *models.Session) (*models.UserProfile, error) {
	if sess == nil || sess.UserID != userID {
		return nil, ErrInvalidSession
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(u.ID, sess.ID, sess.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &models.UserProfile{
		UserID:           u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Avatar:           u.Avatar,
		SessionID:        sess.ID,
		AccessToken:      token,
		AuthMethod:       sess.AuthMethod,
		SessionExpiry:    sess.ExpiresAt,
		MFAEnabled:       u.MFAEnabled,
		SubscriptionTier: u.SubscriptionTier,
		Credits:          u.Credits,
	}, nil
}

// StartSession opens a session for u and returns its profile.
func (s *AuthService) StartSession(ctx context.Context, u *models.User, method string) (*models.UserProfile, error) {
	sess, err := s.CreateSession(ctx, u.ID, method)
	if err != nil {
		return nil, err
	}
	return s.Profile(ctx, u.ID, sess)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.UserProfile, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.StartSession(ctx, u, ProviderPassword)
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, sessionID)
}

// EnsureCustomer returns the user's Stripe customer id, creating the customer on first use.
func (s *AuthService) EnsureCustomer(ctx context.Context, userID string) (string, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.StripeCustomerID != "" {
		return u.StripeCustomerID, nil
	}

	c, err := s.gateway.CreateCustomer(ctx, u.ID, u.Email, u.Name)
	if err != nil {
		return "", err
	}
	u.StripeCustomerID = c.ID
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return "", fmt.Errorf("save customer id: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "customer_id": c.ID}).Info("Stripe customer created")
	return c.ID, nil
}
