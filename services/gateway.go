package services

import (
	"context"
	"encoding/json"
	"time"

	"authpay/models"
)

const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

// Gateway is the subset of the payment provider that the service uses.
type Gateway interface {
	CreateCustomer(ctx context.Context, userID, email, name string) (*models.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*models.Customer, error)
	// SetDefaultPaymentMethod sets the invoice default; an empty id clears it.
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	CreateProduct(ctx context.Context, name, description string) (string, error)
	DeactivateProduct(ctx context.Context, productID string) error
	CreatePrice(ctx context.Context, productID string, cents int64, currency string) (string, error)
	CreateRecurringPrice(ctx context.Context, productID string, cents int64, currency string) (string, error)

	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*models.CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)

	ListPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
	CreateSetupIntent(ctx context.Context, customerID string) (*models.SetupIntent, error)

	// ConstructEvent verifies the signature header against secret and decodes the event.
	ConstructEvent(payload []byte, signature, secret string) (*Event, error)
}

type CheckoutParams struct {
	Mode       string
	PriceID    string
	Quantity   int64
	CustomerID string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type ProviderSubscription struct {
	ID                 string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

// Event is a provider webhook event with its object left undecoded.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}
