package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"authpay/config"
	"authpay/middleware"
	"authpay/services"
)

// API holds the services behind the HTTP routes.
type API struct {
	Auth     *services.AuthService
	MFA      *services.MFAService
	Google   *services.GoogleService
	Payments *services.PaymentService
	Webhooks *services.WebhookService

	Features   config.Features
	SessionTTL time.Duration
	BaseURL    string
	AppName    string
	Log        *logrus.Logger

	// AuthLimiter throttles the credential endpoints when set.
	AuthLimiter gin.HandlerFunc
}

func (a *API) fail(c *gin.Context, err error) {
	status, msg := services.StatusOf(err)
	if status >= http.StatusInternalServerError {
		a.Log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": msg})
}

func (a *API) setSessionCookie(c *gin.Context, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, sessionID, int(a.SessionTTL.Seconds()), "/", "", false, true)
}

func (a *API) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
}

// Routes mounts every endpoint on r.
func (a *API) Routes(r *gin.Engine) {
	authed := middleware.AuthRequired(a.Auth)
	sensitive := []gin.HandlerFunc{authed}
	if a.Features.MFAEnforced {
		sensitive = append(sensitive, middleware.RequireMFA(a.MFA))
	}
	var limited []gin.HandlerFunc
	if a.AuthLimiter != nil {
		limited = append(limited, a.AuthLimiter)
	}

	r.GET("/", a.Welcome)
	r.GET("/health", a.Health)

	auth := r.Group("/auth")
	{
		auth.POST("/register", chain(limited, a.Register)...)
		auth.POST("/login", chain(limited, a.Login)...)
		auth.GET("/me", authed, a.Me)
		auth.POST("/logout", a.Logout)

		if a.Features.GoogleEnabled {
			auth.GET("/google/login", a.GoogleLogin)
			auth.GET("/google/callback", chain(limited, a.GoogleCallback)...)
		}

		auth.POST("/mfa/setup", authed, a.SetupMFA)
		auth.POST("/mfa/verify", chain(limited, authed, a.VerifyMFA)...)
		auth.POST("/mfa/validate", chain(limited, authed, a.ValidateMFA)...)
	}

	payments := r.Group("/payments")
	{
		payments.GET("/products", a.ListProducts)
		payments.POST("/products", authed, a.CreateProduct)
		payments.DELETE("/products/:name", authed, a.DeleteProduct)
		payments.GET("/subscription-tiers", a.SubscriptionTiers)
		payments.POST("/initialize-products", authed, a.InitializeProducts)

		payments.POST("/checkout", authed, a.Checkout)
		payments.POST("/subscribe", authed, a.Subscribe)
		payments.POST("/buy-tokens", authed, a.BuyTokens)
		if a.Features.TestEndpointsEnabled {
			payments.POST("/test/buy-tokens", authed, a.TestBuyTokens)
		}
		payments.POST("/webhook", a.Webhook)

		payments.GET("/my/payments", authed, a.MyPayments)
		payments.GET("/my/subscriptions", authed, a.MySubscriptions)

		payments.GET("/customer", authed, a.Customer)
		payments.GET("/methods", authed, a.ListPaymentMethods)
		payments.POST("/methods", chain(sensitive, a.AddPaymentMethod)...)
		payments.POST("/methods/default/:id", chain(sensitive, a.SetDefaultPaymentMethod)...)
		payments.DELETE("/methods/:id", chain(sensitive, a.DeletePaymentMethod)...)
		payments.POST("/setup-intent", authed, a.CreateSetupIntent)
	}

	if a.Features.UIEnabled {
		a.mountUI(r, limited)
	}
}

func chain(pre []gin.HandlerFunc, h ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(pre)+len(h))
	out = append(out, pre...)
	return append(out, h...)
}

func (a *API) Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the API"})
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
