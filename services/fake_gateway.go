package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"authpay/models"
)

// FakeGateway stands in for Stripe in test mode. Ids carry the same
// prefixes Stripe test objects use, and state lives in memory.
type FakeGateway struct {
	mu        sync.Mutex
	customers map[string]*models.Customer
	methods   map[string][]models.PaymentMethod
	now       func() time.Time
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		customers: make(map[string]*models.Customer),
		methods:   make(map[string][]models.PaymentMethod),
		now:       time.Now,
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

func testCard(id string) models.PaymentMethod {
	return models.PaymentMethod{ID: id, Type: "card", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}
}

func (f *FakeGateway) CreateCustomer(_ context.Context, _ string, email, name string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := &models.Customer{ID: "cus_test_" + shortID(8), Email: email, Name: name}
	f.customers[c.ID] = c
	f.methods[c.ID] = []models.PaymentMethod{testCard("pm_test_" + shortID(8))}
	out := *c
	return &out, nil
}

// customer returns the stored customer, inventing one for unknown cus_ ids. Callers hold mu.
func (f *FakeGateway) customer(id string) (*models.Customer, error) {
	if !strings.HasPrefix(id, "cus_") {
		return nil, ErrCustomerNotFound
	}
	c, ok := f.customers[id]
	if !ok {
		c = &models.Customer{ID: id, Email: "test@example.com", Name: "Test Customer"}
		f.customers[id] = c
		f.methods[id] = []models.PaymentMethod{testCard("pm_test_" + shortID(8))}
	}
	return c, nil
}

func (f *FakeGateway) GetCustomer(_ context.Context, customerID string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.customer(customerID)
	if err != nil {
		return nil, err
	}
	out := *c
	return &out, nil
}

func (f *FakeGateway) SetDefaultPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.customer(customerID)
	if err != nil {
		return err
	}
	c.DefaultPaymentMethod = paymentMethodID
	return nil
}

func (f *FakeGateway) CreateProduct(context.Context, string, string) (string, error) {
	return "prod_test_" + shortID(8), nil
}

func (f *FakeGateway) DeactivateProduct(context.Context, string) error {
	return nil
}

func (f *FakeGateway) CreatePrice(context.Context, string, int64, string) (string, error) {
	return "price_test_" + shortID(8), nil
}

func (f *FakeGateway) CreateRecurringPrice(context.Context, string, int64, string) (string, error) {
	return "price_sub_test_" + shortID(8), nil
}

func (f *FakeGateway) CreateCheckoutSession(_ context.Context, p CheckoutParams) (*models.CheckoutSession, error) {
	prefix := "cs_test_"
	if p.Mode == CheckoutModeSubscription {
		prefix = "cs_sub_test_"
	}
	id := prefix + shortID(16)
	return &models.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/pay/" + id}, nil
}

func (f *FakeGateway) GetSubscription(_ context.Context, subscriptionID string) (*ProviderSubscription, error) {
	start := f.now().UTC().Truncate(time.Second)
	return &ProviderSubscription{
		ID:                 subscriptionID,
		Status:             "active",
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
	}, nil
}

func (f *FakeGateway) ListPaymentMethods(_ context.Context, customerID string) ([]models.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.customer(customerID); err != nil {
		return nil, err
	}
	return append([]models.PaymentMethod{}, f.methods[customerID]...), nil
}

func (f *FakeGateway) AttachPaymentMethod(_ context.Context, paymentMethodID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.customer(customerID); err != nil {
		return err
	}
	for _, pm := range f.methods[customerID] {
		if pm.ID == paymentMethodID {
			return nil
		}
	}
	f.methods[customerID] = append(f.methods[customerID], testCard(paymentMethodID))
	return nil
}

func (f *FakeGateway) DetachPaymentMethod(_ context.Context, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for cid, list := range f.methods {
		for i, pm := range list {
			if pm.ID == paymentMethodID {
				f.methods[cid] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
	}
	return providerError("No such PaymentMethod: '"+paymentMethodID+"'", nil)
}

func (f *FakeGateway) CreateSetupIntent(_ context.Context, customerID string) (*models.SetupIntent, error) {
	if !strings.HasPrefix(customerID, "cus_") {
		return nil, ErrCustomerNotFound
	}
	id := "seti_test_" + shortID(16)
	return &models.SetupIntent{ID: id, ClientSecret: id + "_secret_" + shortID(16)}, nil
}

// ConstructEvent verifies real signatures so webhook tests exercise the same path as production.
func (f *FakeGateway) ConstructEvent(payload []byte, signature, secret string) (*Event, error) {
	return verifyEvent(payload, signature, secret)
}

var _ Gateway = (*FakeGateway)(nil)
var _ Gateway = (*StripeGateway)(nil)
