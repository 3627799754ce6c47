package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"authpay/models"
)

// Mailer sends a message and returns the provider status code.
type Mailer interface {
	Send(email *mail.SGMailV3) (int, error)
}

type sendgridMailer struct {
	apiKey string
}

func (m sendgridMailer) Send(email *mail.SGMailV3) (int, error) {
	resp, err := sendgrid.NewSendClient(m.apiKey).Send(email)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// Notifier sends best-effort account emails and purchase pings. Failures are
// logged and never returned.
type Notifier struct {
	appName         string
	fromEmail       string
	mailer          Mailer
	slackWebhookURL string
	httpClient      *http.Client
	log             *logrus.Logger
}

type NotifierConfig struct {
	AppName         string
	SendGridAPIKey  string
	FromEmail       string
	SlackWebhookURL string
}

// SetMailer replaces the SendGrid client.
func (n *Notifier) SetMailer(m Mailer) { n.mailer = m }

func NewNotifier(cfg NotifierConfig, log *logrus.Logger) *Notifier {
	n := &Notifier{
		appName:         cfg.AppName,
		fromEmail:       cfg.FromEmail,
		slackWebhookURL: cfg.SlackWebhookURL,
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		log:             log,
	}
	if cfg.SendGridAPIKey != "" {
		n.mailer = sendgridMailer{apiKey: cfg.SendGridAPIKey}
	}
	return n
}

func (n *Notifier) SendWelcome(u models.User) {
	subject := fmt.Sprintf("Welcome to %s", n.appName)
	body := fmt.Sprintf("Hi %s,\n\nYour %s account (%s) is ready. You are on the %s plan with %d credits.\n",
		displayName(u), n.appName, u.Email, u.SubscriptionTier, u.Credits)
	n.sendEmail(u, subject, body)
}

func (n *Notifier) SendReceipt(u models.User, p models.Payment) {
	subject := fmt.Sprintf("[%s] Payment received", n.appName)
	body := fmt.Sprintf("Hi %s,\n\nWe received your payment of %s %s.\n\nPayment ID: %s\nTime: %s\n",
		displayName(u), formatDollars(p.AmountCents), p.Currency, p.StripePaymentID,
		p.CreatedAt.Format(time.RFC3339))
	n.sendEmail(u, subject, body)
	n.postSlack(fmt.Sprintf("Payment received\n\nUser: %s\nAmount: %s %s\nSession: %s",
		u.Email, formatDollars(p.AmountCents), p.Currency, p.StripePaymentID))
}

func (n *Notifier) sendEmail(u models.User, subject, body string) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorf("email panic recovered: %v", r)
		}
	}()

	if n.mailer == nil || n.fromEmail == "" {
		n.log.Debug("Missing SendGrid config, skipping email")
		return
	}

	from := mail.NewEmail(n.appName, n.fromEmail)
	to := mail.NewEmail(displayName(u), u.Email)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	status, err := n.mailer.Send(message)
	if err != nil {
		n.log.WithError(err).WithField("to", u.Email).Warn("Error sending email")
		return
	}
	n.log.WithFields(logrus.Fields{"to": u.Email, "status": status}).Info("Email sent")
}

func (n *Notifier) postSlack(text string) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorf("Slack panic recovered: %v", r)
		}
	}()

	if n.slackWebhookURL == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		n.log.WithError(err).Warn("Error marshaling Slack payload")
		return
	}

	resp, err := n.httpClient.Post(n.slackWebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		n.log.WithError(err).Warn("Error sending Slack request")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.log.Warnf("Slack API error: Status %d", resp.StatusCode)
	}
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
