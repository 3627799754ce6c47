package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"authpay/middleware"
	"authpay/models"
	"authpay/services"
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type MFACodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (a *API) Register(c *gin.Context) {
	var input RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := a.Auth.Register(c.Request.Context(), services.RegisterInput{
		Email:    input.Email,
		Name:     input.Name,
		Password: input.Password,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	a.startSession(c, u, services.ProviderPassword)
}

func (a *API) Login(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := a.Auth.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.setSessionCookie(c, profile.SessionID)
	c.JSON(http.StatusOK, profile)
}

func (a *API) startSession(c *gin.Context, u *models.User, method string) {
	profile, err := a.Auth.StartSession(c.Request.Context(), u, method)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.setSessionCookie(c, profile.SessionID)
	c.JSON(http.StatusOK, profile)
}

func (a *API) Me(c *gin.Context) {
	profile, err := a.Auth.Profile(c.Request.Context(), middleware.UserID(c), middleware.Session(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Logout ends whichever session the request carries. It succeeds without one.
func (a *API) Logout(c *gin.Context) {
	sessionID, _ := c.Cookie(middleware.SessionCookie)
	if authHeader := c.GetHeader("Authorization"); sessionID == "" && strings.HasPrefix(authHeader, "Bearer ") {
		if sess, err := a.Auth.ResolveToken(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer ")); err == nil {
			sessionID = sess.ID
		}
	}

	if err := a.Auth.Logout(c.Request.Context(), sessionID); err != nil {
		a.Log.WithError(err).Warn("Failed to delete session on logout")
	}
	a.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (a *API) GoogleLogin(c *gin.Context) {
	url, err := a.Google.LoginURL(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

func (a *API) GoogleCallback(c *gin.Context) {
	u, err := a.Google.Callback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		a.fail(c, err)
		return
	}
	a.startSession(c, u, services.ProviderGoogle)
}

func (a *API) SetupMFA(c *gin.Context) {
	setup, err := a.MFA.Setup(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, setup)
}

func (a *API) VerifyMFA(c *gin.Context) {
	var input MFACodeRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.MFA.Enable(c.Request.Context(), middleware.UserID(c), input.Code); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "MFA enabled successfully"})
}

func (a *API) ValidateMFA(c *gin.Context) {
	var input MFACodeRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.MFA.Validate(c.Request.Context(), middleware.Session(c), input.Code); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "MFA code is valid"})
}
