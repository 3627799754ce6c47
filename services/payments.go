package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"authpay/models"
	"authpay/store"
)

type PaymentService struct {
	store   store.Store
	auth    *AuthService
	gateway Gateway
	log     *logrus.Logger
}

func NewPaymentService(st store.Store, auth *AuthService, gw Gateway, log *logrus.Logger) *PaymentService {
	return &PaymentService{store: st, auth: auth, gateway: gw, log: log}
}

type ProductInput struct {
	Name        string
	Description string
	PriceCents  *int64
	Currency    string
	Metadata    map[string]string
	// Recurring makes the price a monthly subscription price.
	Recurring bool
}

func (s *PaymentService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *PaymentService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if _, err := s.store.GetProductByName(ctx, in.Name); err == nil {
		return nil, ErrProductExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup product: %w", err)
	}

	currency := in.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	stripeID, err := s.gateway.CreateProduct(ctx, in.Name, in.Description)
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Active:      true,
		Currency:    currency,
		Metadata:    map[string]string{models.MetaStripeProductID: stripeID},
	}
	for k, v := range in.Metadata {
		p.Metadata[k] = v
	}

	if in.PriceCents != nil {
		var priceID string
		if in.Recurring {
			priceID, err = s.gateway.CreateRecurringPrice(ctx, stripeID, *in.PriceCents, currency)
		} else {
			priceID, err = s.gateway.CreatePrice(ctx, stripeID, *in.PriceCents, currency)
		}
		if err != nil {
			return nil, err
		}
		price := *in.PriceCents
		p.PriceID = priceID
		p.PriceCents = &price
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrProductExists
		}
		return nil, fmt.Errorf("save product: %w", err)
	}
	s.log.WithFields(logrus.Fields{"product": p.Name, "stripe_product_id": stripeID}).Info("Product created")
	return p, nil
}

// DeleteProduct removes the product by name. Deactivation in Stripe is best effort.
func (s *PaymentService) DeleteProduct(ctx context.Context, name string) error {
	p, err := s.store.GetProductByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return ErrProductNotFound
	} else if err != nil {
		return fmt.Errorf("lookup product: %w", err)
	}

	if stripeID := p.Metadata[models.MetaStripeProductID]; stripeID != "" {
		if err := s.gateway.DeactivateProduct(ctx, stripeID); err != nil {
			s.log.WithError(err).WithField("product", name).Warn("Error deactivating Stripe product")
		}
	}

	if err := s.store.DeleteProduct(ctx, p.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func (s *PaymentService) SubscriptionTiers() []models.SubscriptionTier {
	return Tiers()
}

type InitializeResult struct {
	Success              bool `json:"success"`
	ProductsAdded        int  `json:"products_added"`
	SubscriptionProducts int  `json:"subscription_products"`
	TokenProduct         bool `json:"token_product"`
}

// InitializeProducts creates the paid tier products and the token product, skipping any that exist.
func (s *PaymentService) InitializeProducts(ctx context.Context) (*InitializeResult, error) {
	before, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range Tiers() {
		if t.PriceCents <= 0 {
			continue
		}
		price := t.PriceCents
		_, err := s.CreateProduct(ctx, ProductInput{
			Name:        SubscriptionProductName(t.Name),
			Description: fmt.Sprintf("%s subscription with %d credits per month", t.Name, t.Credits),
			PriceCents:  &price,
			Currency:    t.Currency,
			Metadata:    subscriptionMetadata(t),
			Recurring:   true,
		})
		if err != nil && !errors.Is(err, ErrProductExists) {
			s.log.WithError(err).WithField("tier", t.Name).Error("Error initializing subscription product")
		}
	}

	tokenPrice := int64(TokenPriceCents)
	_, err = s.CreateProduct(ctx, ProductInput{
		Name:        TokenProductName,
		Description: TokenProductDescription,
		PriceCents:  &tokenPrice,
		Currency:    defaultCurrency,
	})
	if err != nil && !errors.Is(err, ErrProductExists) {
		s.log.WithError(err).Error("Error initializing token product")
	}

	after, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	res := &InitializeResult{Success: true, ProductsAdded: len(after) - len(before)}
	for _, p := range after {
		if p.Metadata[models.MetaType] == ProductTypeSubscription {
			res.SubscriptionProducts++
		}
		if p.Name == TokenProductName {
			res.TokenProduct = true
		}
	}
	return res, nil
}

type CheckoutInput struct {
	SuccessURL string
	CancelURL  string
}

func (s *PaymentService) CheckoutProduct(ctx context.Context, userID, productID string, in CheckoutInput) (*models.CheckoutSession, error) {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil || p.PriceID == "" {
		return nil, ErrProductNoPrice
	}
	customerID, err := s.auth.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		Mode:       CheckoutModePayment,
		PriceID:    p.PriceID,
		Quantity:   1,
		CustomerID: customerID,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
		Metadata:   map[string]string{"user_id": userID, "product_id": p.ID},
	})
}

func (s *PaymentService) findTierProduct(ctx context.Context, tier string) (*models.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].Metadata[models.MetaTier] == tier {
			return &products[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *PaymentService) Subscribe(ctx context.Context, userID, tier string, in CheckoutInput) (*models.CheckoutSession, error) {
	if !IsPaidTier(tier) {
		return nil, ErrTierNotFound
	}
	p, err := s.findTierProduct(ctx, tier)
	if err != nil || p.PriceID == "" {
		return nil, ErrTierNotFound
	}
	customerID, err := s.auth.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		Mode:       CheckoutModeSubscription,
		PriceID:    p.PriceID,
		Quantity:   1,
		CustomerID: customerID,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
		Metadata:   map[string]string{"user_id": userID, models.MetaTier: tier},
	})
}

func (s *PaymentService) BuyTokens(ctx context.Context, userID string, amount int64, in CheckoutInput) (*models.CheckoutSession, error) {
	p, err := s.store.GetProductByName(ctx, TokenProductName)
	if err != nil || p.PriceID == "" {
		return nil, ErrTokenProductNotFound
	}

	if minTokens := MinTokenPurchase(); amount < minTokens {
		return nil, newError(http.StatusBadRequest, fmt.Sprintf(
			"Minimum token purchase is %d tokens (%s)", minTokens, formatDollars(minTokens*TokenPriceCents)))
	}

	customerID, err := s.auth.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		Mode:       CheckoutModePayment,
		PriceID:    p.PriceID,
		Quantity:   amount,
		CustomerID: customerID,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
		Metadata:   map[string]string{"user_id": userID, "tokens": strconv.FormatInt(amount, 10)},
	})
}

// TestBuyTokens credits the user directly and returns a placeholder checkout URL.
func (s *PaymentService) TestBuyTokens(ctx context.Context, userID string, amount int64) (*models.CheckoutSession, error) {
	if amount <= 0 {
		return nil, ErrTokenAmount
	}
	if _, err := s.store.AddCredits(ctx, userID, amount); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("add credits: %w", err)
	}
	id := "test_session_" + shortID(16)
	return &models.CheckoutSession{ID: id, URL: "https://example.com/test-checkout/" + id}, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	return s.store.ListPayments(ctx, userID)
}

func (s *PaymentService) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	return s.store.ListSubscriptions(ctx, userID)
}

func (s *PaymentService) Customer(ctx context.Context, userID string) (*models.Customer, error) {
	u, err := s.auth.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.auth.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	c, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.Email == "" {
		c.Email = u.Email
	}
	if c.Name == "" {
		c.Name = u.Name
	}
	return c, nil
}

func (s *PaymentService) PaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	u, err := s.auth.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.StripeCustomerID == "" {
		return []models.PaymentMethod{}, nil
	}

	methods, err := s.gateway.ListPaymentMethods(ctx, u.StripeCustomerID)
	if errors.Is(err, ErrCustomerNotFound) {
		return []models.PaymentMethod{}, nil
	} else if err != nil {
		return nil, err
	}
	c, err := s.gateway.GetCustomer(ctx, u.StripeCustomerID)
	if errors.Is(err, ErrCustomerNotFound) {
		return []models.PaymentMethod{}, nil
	} else if err != nil {
		return nil, err
	}
	for i := range methods {
		methods[i].IsDefault = methods[i].ID == c.DefaultPaymentMethod
	}
	return methods, nil
}

// AddPaymentMethod attaches the method; the customer's only method becomes the default.
func (s *PaymentService) AddPaymentMethod(ctx context.Context, userID, paymentMethodID string) error {
	customerID, err := s.auth.EnsureCustomer(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.gateway.AttachPaymentMethod(ctx, paymentMethodID, customerID); err != nil {
		return err
	}
	methods, err := s.gateway.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return err
	}
	if len(methods) == 1 {
		return s.gateway.SetDefaultPaymentMethod(ctx, customerID, paymentMethodID)
	}
	return nil
}

// ownedMethod checks that paymentMethodID belongs to the user's customer and returns the customer id.
func (s *PaymentService) ownedMethod(ctx context.Context, userID, paymentMethodID string) (string, error) {
	u, err := s.auth.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	methods, err := s.gateway.ListPaymentMethods(ctx, u.StripeCustomerID)
	if err != nil {
		return "", err
	}
	for _, m := range methods {
		if m.ID == paymentMethodID {
			return u.StripeCustomerID, nil
		}
	}
	return "", ErrPaymentMethodNotFound
}

func (s *PaymentService) SetDefaultPaymentMethod(ctx context.Context, userID, paymentMethodID string) error {
	customerID, err := s.ownedMethod(ctx, userID, paymentMethodID)
	if err != nil {
		return err
	}
	return s.gateway.SetDefaultPaymentMethod(ctx, customerID, paymentMethodID)
}

func (s *PaymentService) DeletePaymentMethod(ctx context.Context, userID, paymentMethodID string) error {
	customerID, err := s.ownedMethod(ctx, userID, paymentMethodID)
	if err != nil {
		return err
	}
	c, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if c.DefaultPaymentMethod == paymentMethodID {
		if err := s.gateway.SetDefaultPaymentMethod(ctx, customerID, ""); err != nil {
			return err
		}
	}
	return s.gateway.DetachPaymentMethod(ctx, paymentMethodID)
}

func (s *PaymentService) CreateSetupIntent(ctx context.Context, userID string) (*models.SetupIntent, error) {
	customerID, err := s.auth.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateSetupIntent(ctx, customerID)
}
