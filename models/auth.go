package models

import (
	"time"
)

type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	Avatar           string    `json:"avatar,omitempty"`
	PasswordHash     string    `json:"-"`
	AuthProvider     string    `json:"auth_provider,omitempty"`
	ProviderUserID   string    `json:"provider_user_id,omitempty"`
	MFASecret        string    `json:"-"`
	MFAEnabled       bool      `json:"mfa_enabled"`
	SubscriptionTier string    `json:"subscription_tier"`
	Credits          int64     `json:"credits"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	AuthMethod string    `json:"auth_method"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

type UserProfile struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	Avatar           string    `json:"avatar,omitempty"`
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token,omitempty"`
	AuthMethod       string    `json:"auth_method"`
	SessionExpiry    time.Time `json:"session_expiry"`
	MFAEnabled       bool      `json:"mfa_enabled"`
	SubscriptionTier string    `json:"subscription_tier"`
	Credits          int64     `json:"credits"`
}

type MFASetup struct {
	Secret string `json:"secret"`
	QRCode string `json:"qr_code"`
}
