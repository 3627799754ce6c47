package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"authpay/middleware"
	"authpay/models"
	"authpay/services"
)

//go:embed templates/*.html
var templateFS embed.FS

var uiFuncs = template.FuncMap{
	"dollars": func(cents int64) string { return fmt.Sprintf("$%d.%02d", cents/100, cents%100) },
	"deref":   func(v *int64) int64 { return *v },
}

func parseTemplates() *template.Template {
	return template.Must(template.New("").Funcs(uiFuncs).ParseFS(templateFS, "templates/*.html"))
}

func (a *API) mountUI(r *gin.Engine, limited []gin.HandlerFunc) {
	r.SetHTMLTemplate(parseTemplates())

	ui := r.Group("/ui")
	{
		ui.GET("", func(c *gin.Context) { c.Redirect(http.StatusFound, "/ui/dashboard") })
		ui.GET("/login", a.ShowLogin)
		ui.POST("/login", chain(limited, a.UILogin)...)
		ui.POST("/register", chain(limited, a.UIRegister)...)
		ui.POST("/logout", a.UILogout)
		ui.GET("/dashboard", a.ShowDashboard)
		ui.POST("/buy-tokens", a.UIBuyTokens)
		ui.POST("/subscribe", a.UISubscribe)
	}
}

func (a *API) page(c *gin.Context, title string) gin.H {
	return gin.H{
		"Title":         title,
		"AppName":       a.AppName,
		"GoogleEnabled": a.Features.GoogleEnabled,
		"Notice":        c.Query("notice"),
		"Error":         c.Query("error"),
	}
}

// uiProfile returns the profile for the session cookie, or nil when signed out.
func (a *API) uiProfile(c *gin.Context) *models.UserProfile {
	cookie, _ := c.Cookie(middleware.SessionCookie)
	sess, err := a.Auth.ResolveSession(c.Request.Context(), cookie)
	if err != nil {
		return nil
	}
	profile, err := a.Auth.Profile(c.Request.Context(), sess.UserID, sess)
	if err != nil {
		return nil
	}
	return profile
}

func (a *API) uiError(c *gin.Context, page, title string, err error) {
	status, msg := services.StatusOf(err)
	data := a.page(c, title)
	data["Error"] = msg
	c.HTML(status, page, data)
}

func (a *API) ShowLogin(c *gin.Context) {
	if a.uiProfile(c) != nil {
		c.Redirect(http.StatusFound, "/ui/dashboard")
		return
	}
	c.HTML(http.StatusOK, "login.html", a.page(c, "Login"))
}

func (a *API) UILogin(c *gin.Context) {
	profile, err := a.Auth.Login(c.Request.Context(), c.PostForm("email"), c.PostForm("password"))
	if err != nil {
		a.uiError(c, "login.html", "Login", err)
		return
	}
	a.setSessionCookie(c, profile.SessionID)
	c.Redirect(http.StatusSeeOther, "/ui/dashboard")
}

func (a *API) UIRegister(c *gin.Context) {
	email, password := c.PostForm("email"), c.PostForm("password")
	if email == "" || password == "" {
		data := a.page(c, "Login")
		data["Error"] = "Email and password are required"
		c.HTML(http.StatusBadRequest, "login.html", data)
		return
	}

	u, err := a.Auth.Register(c.Request.Context(), services.RegisterInput{
		Email:    email,
		Name:     c.PostForm("name"),
		Password: password,
	})
	if err != nil {
		a.uiError(c, "login.html", "Login", err)
		return
	}
	profile, err := a.Auth.StartSession(c.Request.Context(), u, services.ProviderPassword)
	if err != nil {
		a.uiError(c, "login.html", "Login", err)
		return
	}
	a.setSessionCookie(c, profile.SessionID)
	c.Redirect(http.StatusSeeOther, "/ui/dashboard")
}

func (a *API) UILogout(c *gin.Context) {
	cookie, _ := c.Cookie(middleware.SessionCookie)
	if err := a.Auth.Logout(c.Request.Context(), cookie); err != nil {
		a.Log.WithError(err).Warn("Failed to delete session on logout")
	}
	a.clearSessionCookie(c)
	c.Redirect(http.StatusSeeOther, "/ui/login")
}

func (a *API) ShowDashboard(c *gin.Context) {
	profile := a.uiProfile(c)
	if profile == nil {
		c.Redirect(http.StatusFound, "/ui/login")
		return
	}
	ctx := c.Request.Context()

	products, err := a.Payments.ListProducts(ctx)
	if err != nil {
		a.uiError(c, "login.html", "Dashboard", err)
		return
	}
	payments, err := a.Payments.ListPayments(ctx, profile.UserID)
	if err != nil {
		a.uiError(c, "login.html", "Dashboard", err)
		return
	}
	subs, err := a.Payments.ListSubscriptions(ctx, profile.UserID)
	if err != nil {
		a.uiError(c, "login.html", "Dashboard", err)
		return
	}

	data := a.page(c, "Dashboard")
	data["Profile"] = profile
	data["Tiers"] = a.Payments.SubscriptionTiers()
	data["Products"] = products
	data["Payments"] = payments
	data["Subscriptions"] = subs
	data["MinTokens"] = services.MinTokenPurchase()
	c.HTML(http.StatusOK, "dashboard.html", data)
}

func (a *API) checkoutURLs() services.CheckoutInput {
	return services.CheckoutInput{
		SuccessURL: a.BaseURL + "/ui/dashboard?notice=Payment+completed",
		CancelURL:  a.BaseURL + "/ui/dashboard?error=Payment+cancelled",
	}
}

// UIBuyTokens credits directly when test endpoints are on, otherwise it sends the user to checkout.
func (a *API) UIBuyTokens(c *gin.Context) {
	profile := a.uiProfile(c)
	if profile == nil {
		c.Redirect(http.StatusFound, "/ui/login")
		return
	}
	amount, err := strconv.ParseInt(c.PostForm("amount"), 10, 64)
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/ui/dashboard?error=Invalid+token+amount")
		return
	}

	if a.Features.TestEndpointsEnabled {
		if _, err := a.Payments.TestBuyTokens(c.Request.Context(), profile.UserID, amount); err != nil {
			a.redirectError(c, err)
			return
		}
		c.Redirect(http.StatusSeeOther, "/ui/dashboard?notice=Tokens+added")
		return
	}

	session, err := a.Payments.BuyTokens(c.Request.Context(), profile.UserID, amount, a.checkoutURLs())
	if err != nil {
		a.redirectError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, session.URL)
}

func (a *API) UISubscribe(c *gin.Context) {
	profile := a.uiProfile(c)
	if profile == nil {
		c.Redirect(http.StatusFound, "/ui/login")
		return
	}

	session, err := a.Payments.Subscribe(c.Request.Context(), profile.UserID, c.PostForm("tier"), a.checkoutURLs())
	if err != nil {
		a.redirectError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, session.URL)
}

func (a *API) redirectError(c *gin.Context, err error) {
	_, msg := services.StatusOf(err)
	c.Redirect(http.StatusSeeOther, "/ui/dashboard?error="+url.QueryEscape(msg))
}
