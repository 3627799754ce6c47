package models

import (
	"time"
)

// Product metadata keys.
const (
	MetaStripeProductID = "stripe_product_id"
	MetaType            = "type"
	MetaTier            = "tier"
	MetaCredits         = "credits"
)

type Product struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Active      bool              `json:"active"`
	PriceID     string            `json:"price_id,omitempty"`
	PriceCents  *int64            `json:"price_cents,omitempty"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Subscription struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	ProductID            string     `json:"product_id"`
	Status               string     `json:"status"`
	CurrentPeriodStart   time.Time  `json:"current_period_start"`
	CurrentPeriodEnd     time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
}

type Payment struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	AmountCents     int64             `json:"amount_cents"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	PaymentMethod   string            `json:"payment_method"`
	StripePaymentID string            `json:"stripe_payment_id"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type SubscriptionTier struct {
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	Currency   string   `json:"currency"`
	Features   []string `json:"features"`
	Credits    int64    `json:"credits"`
}

type Customer struct {
	ID                   string `json:"id"`
	Email                string `json:"email"`
	Name                 string `json:"name,omitempty"`
	DefaultPaymentMethod string `json:"default_payment_method,omitempty"`
}

type PaymentMethod struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Brand     string `json:"brand,omitempty"`
	Last4     string `json:"last4,omitempty"`
	ExpMonth  int64  `json:"exp_month,omitempty"`
	ExpYear   int64  `json:"exp_year,omitempty"`
	IsDefault bool   `json:"is_default"`
}

type CheckoutSession struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}
