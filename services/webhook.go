package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"authpay/models"
	"authpay/store"
)

const EventCheckoutCompleted = "checkout.session.completed"

// WebhookResult is the JSON body returned to the provider.
type WebhookResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type WebhookService struct {
	store    store.Store
	gateway  Gateway
	notifier *Notifier
	secret   string
	log      *logrus.Logger
	now      func() time.Time
}

func NewWebhookService(st store.Store, gw Gateway, notifier *Notifier, secret string, log *logrus.Logger) *WebhookService {
	return &WebhookService{store: st, gateway: gw, notifier: notifier, secret: secret, log: log, now: time.Now}
}

type checkoutObject struct {
	ID           string                 `json:"id"`
	Mode         string                 `json:"mode"`
	AmountTotal  float64                `json:"amount_total"`
	Currency     string                 `json:"currency"`
	Subscription json.RawMessage        `json:"subscription"`
	Metadata     map[string]interface{} `json:"metadata"`
}

func (o checkoutObject) subscriptionID() string {
	if len(o.Subscription) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(o.Subscription, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(o.Subscription, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func (o checkoutObject) metadata() map[string]string {
	out := make(map[string]string, len(o.Metadata))
	for k, v := range o.Metadata {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// Handle verifies or parses payload and applies the event.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	var ev *Event
	var err error
	if s.secret != "" && signature != "" {
		ev, err = s.gateway.ConstructEvent(payload, signature, s.secret)
	} else {
		s.log.Warn("Processing webhook without signature verification")
		ev, err = parseEvent(payload)
	}
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})
	if ev.Type != EventCheckoutCompleted {
		log.Debug("Ignoring webhook event")
		return &WebhookResult{Success: true}, nil
	}

	var obj checkoutObject
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return nil, &Error{Status: ErrInvalidPayload.Status, Message: ErrInvalidPayload.Message, Err: err}
	}
	md := obj.metadata()
	userID := md["user_id"]
	if userID == "" {
		log.Warn("Checkout session has no user_id")
		return &WebhookResult{Success: false, Error: "No user ID in metadata"}, nil
	}
	log = log.WithField("user_id", userID)

	switch obj.Mode {
	case CheckoutModePayment:
		if err := s.completePayment(ctx, log, obj, md, userID); err != nil {
			return nil, err
		}
	case CheckoutModeSubscription:
		if err := s.completeSubscription(ctx, log, obj, md, userID); err != nil {
			return nil, err
		}
	default:
		log.WithField("mode", obj.Mode).Warn("Unhandled checkout mode")
	}
	return &WebhookResult{Success: true}, nil
}

func (s *WebhookService) completePayment(ctx context.Context, log *logrus.Entry, obj checkoutObject, md map[string]string, userID string) error {
	if _, err := s.store.GetUser(ctx, userID); errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	} else if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	currency := obj.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	p := &models.Payment{
		ID:              uuid.NewString(),
		UserID:          userID,
		AmountCents:     int64(math.Round(obj.AmountTotal)),
		Currency:        currency,
		Status:          "completed",
		CreatedAt:       s.now().UTC(),
		PaymentMethod:   "stripe",
		StripePaymentID: obj.ID,
		Metadata:        md,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	log.WithField("amount_cents", p.AmountCents).Info("Payment recorded")

	if raw, ok := md["tokens"]; ok {
		tokens, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.WithError(err).Warn("Invalid tokens metadata")
		} else if _, err := s.store.AddCredits(ctx, userID, tokens); errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		} else if err != nil {
			return fmt.Errorf("add credits: %w", err)
		} else {
			log.WithField("tokens", tokens).Info("Credits added")
		}
	}

	s.sendReceipt(ctx, userID, *p)
	return nil
}

func (s *WebhookService) completeSubscription(ctx context.Context, log *logrus.Entry, obj checkoutObject, md map[string]string, userID string) error {
	subID := obj.subscriptionID()
	sub, err := s.gateway.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}

	tier := md[models.MetaTier]
	if tier == "" {
		return nil
	}

	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	} else if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	u.SubscriptionTier = tier
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	if t, known := GetTier(tier); known {
		if _, err := s.store.AddCredits(ctx, userID, t.Credits); err != nil {
			return fmt.Errorf("add credits: %w", err)
		}
	} else {
		log.WithField("tier", tier).Warn("Unknown tier, no credits granted")
	}
	log.WithField("tier", tier).Info("Subscription activated")

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		if p.Metadata[models.MetaTier] != tier {
			continue
		}
		rec := &models.Subscription{
			ID:                   uuid.NewString(),
			UserID:               userID,
			ProductID:            p.ID,
			Status:               "active",
			CurrentPeriodStart:   sub.CurrentPeriodStart,
			CurrentPeriodEnd:     sub.CurrentPeriodEnd,
			CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
			CanceledAt:           sub.CanceledAt,
			StripeSubscriptionID: sub.ID,
		}
		if err := s.store.CreateSubscription(ctx, rec); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("record subscription: %w", err)
		}
		break
	}
	return nil
}

func (s *WebhookService) sendReceipt(ctx context.Context, userID string, p models.Payment) {
	if s.notifier == nil {
		return
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.log.WithError(err).Warn("Receipt skipped")
		return
	}
	go s.notifier.SendReceipt(*u, p)
}

// parseEvent decodes an unsigned event body, unwrapping the envelopes test clients send.
func parseEvent(payload []byte) (*Event, error) {
	var raw interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &Error{Status: ErrInvalidPayload.Status, Message: ErrInvalidPayload.Message, Err: err}
	}

	obj, ok := raw.(map[string]interface{})
	if !ok || (obj["type"] == nil && obj["id"] == nil) {
		switch v := raw.(type) {
		case map[string]interface{}:
			if body, ok := v["body"].(map[string]interface{}); ok {
				obj = body
			}
		case []interface{}:
			if len(v) > 0 {
				if first, ok := v[0].(map[string]interface{}); ok {
					obj = first
				}
			}
		}
	}
	if obj == nil {
		return nil, ErrInvalidPayload
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, &Error{Status: ErrInvalidPayload.Status, Message: ErrInvalidPayload.Message, Err: err}
	}
	return &ev, nil
}
