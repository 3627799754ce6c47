package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"authpay/models"
)

const tracerName = "StripeGateway"

type StripeGateway struct {
	api *client.API
}

// NewStripeGateway builds a client for key. backends may be nil to use Stripe's defaults.
func NewStripeGateway(key string, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(key, backends)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, userID, email, name string) (*models.Customer, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CreateCustomer")
	defer span.End()

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, g.fail(span, err)
	}
	span.SetAttributes(attribute.String("stripe.customer_id", c.ID))
	return toCustomer(c), nil
}

func (g *StripeGateway) GetCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "GetCustomer")
	defer span.End()

	c, err := g.api.Customers.Get(customerID, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		if isMissing(err) {
			return nil, ErrCustomerNotFound
		}
		return nil, g.fail(span, err)
	}
	if c.Deleted {
		return nil, ErrCustomerNotFound
	}
	return toCustomer(c), nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "SetDefaultPaymentMethod")
	defer span.End()

	_, err := g.api.Customers.Update(customerID, &stripe.CustomerParams{
		Params:          stripe.Params{Context: ctx},
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	})
	if err != nil {
		if isMissing(err) {
			return ErrCustomerNotFound
		}
		return g.fail(span, err)
	}
	return nil
}

func (g *StripeGateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CreateProduct")
	defer span.End()

	params := &stripe.ProductParams{Params: stripe.Params{Context: ctx}, Name: stripe.String(name)}
	if description != "" {
		params.Description = stripe.String(description)
	}
	p, err := g.api.Products.New(params)
	if err != nil {
		return "", g.fail(span, err)
	}
	return p.ID, nil
}

func (g *StripeGateway) DeactivateProduct(ctx context.Context, productID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "DeactivateProduct")
	defer span.End()

	if _, err := g.api.Products.Update(productID, &stripe.ProductParams{Params: stripe.Params{Context: ctx}, Active: stripe.Bool(false)}); err != nil {
		return g.fail(span, err)
	}
	return nil
}

func (g *StripeGateway) CreatePrice(ctx context.Context, productID string, cents int64, currency string) (string, error) {
	return g.createPrice(ctx, &stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(cents),
		Currency:   stripe.String(currency),
	})
}

func (g *StripeGateway) CreateRecurringPrice(ctx context.Context, productID string, cents int64, currency string) (string, error) {
	return g.createPrice(ctx, &stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(cents),
		Currency:   stripe.String(currency),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
	})
}

func (g *StripeGateway) createPrice(ctx context.Context, params *stripe.PriceParams) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CreatePrice")
	defer span.End()

	params.Context = ctx
	p, err := g.api.Prices.New(params)
	if err != nil {
		return "", g.fail(span, err)
	}
	return p.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (*models.CheckoutSession, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.mode", cp.Mode))

	quantity := cp.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(cp.Mode),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(cp.PriceID), Quantity: stripe.Int64(quantity)},
		},
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
	}
	if cp.CustomerID != "" {
		params.Customer = stripe.String(cp.CustomerID)
	}
	for k, v := range cp.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.fail(span, err)
	}
	return &models.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "GetSubscription")
	defer span.End()

	s, err := g.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, g.fail(span, err)
	}
	out := &ProviderSubscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: time.Unix(s.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(s.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
	if s.CanceledAt > 0 {
		t := time.Unix(s.CanceledAt, 0).UTC()
		out.CanceledAt = &t
	}
	return out, nil
}

func (g *StripeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListPaymentMethods")
	defer span.End()

	it := g.api.PaymentMethods.List(&stripe.PaymentMethodListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Customer:   stripe.String(customerID),
		Type:       stripe.String(string(stripe.PaymentMethodTypeCard)),
	})
	out := []models.PaymentMethod{}
	for it.Next() {
		pm := it.PaymentMethod()
		view := models.PaymentMethod{ID: pm.ID, Type: string(pm.Type)}
		if pm.Card != nil {
			view.Brand = string(pm.Card.Brand)
			view.Last4 = pm.Card.Last4
			view.ExpMonth = pm.Card.ExpMonth
			view.ExpYear = pm.Card.ExpYear
		}
		out = append(out, view)
	}
	if err := it.Err(); err != nil {
		if isMissing(err) {
			return nil, ErrCustomerNotFound
		}
		return nil, g.fail(span, err)
	}
	return out, nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "AttachPaymentMethod")
	defer span.End()

	_, err := g.api.PaymentMethods.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return g.fail(span, err)
	}
	return nil
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "DetachPaymentMethod")
	defer span.End()

	if _, err := g.api.PaymentMethods.Detach(paymentMethodID, &stripe.PaymentMethodDetachParams{Params: stripe.Params{Context: ctx}}); err != nil {
		return g.fail(span, err)
	}
	return nil
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, customerID string) (*models.SetupIntent, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CreateSetupIntent")
	defer span.End()

	si, err := g.api.SetupIntents.New(&stripe.SetupIntentParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Usage:    stripe.String(string(stripe.SetupIntentUsageOffSession)),
	})
	if err != nil {
		return nil, g.fail(span, err)
	}
	return &models.SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func (g *StripeGateway) ConstructEvent(payload []byte, signature, secret string) (*Event, error) {
	return verifyEvent(payload, signature, secret)
}

// verifyEvent checks a Stripe-Signature header locally; no API call is made.
func verifyEvent(payload []byte, signature, secret string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &Error{Status: ErrInvalidSignature.Status, Message: ErrInvalidSignature.Message, Err: err}
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil {
		out.Data.Object = ev.Data.Raw
	}
	return out, nil
}

func (g *StripeGateway) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "stripe request failed")
	return providerError(stripeMessage(err), err)
}

func toCustomer(c *stripe.Customer) *models.Customer {
	out := &models.Customer{ID: c.ID, Email: c.Email, Name: c.Name}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethod = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return out
}

func isMissing(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing
}

func stripeMessage(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return se.Msg
	}
	return strings.TrimSpace(fmt.Sprint(err))
}
