package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authpay/middleware"
	"authpay/models"
)

func TestWelcomeAndHealth(t *testing.T) {
	s := newTestServer(t, allFeatures())

	w := s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Welcome to the API"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestRegister_SetsSessionCookie(t *testing.T) {
	s := newTestServer(t, allFeatures())

	w := s.do(t, http.MethodPost, "/auth/register", gin.H{"email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)

	var p models.UserProfile
	decodeJSON(t, w, &p)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, "Free", p.SubscriptionTier)
	assert.Equal(t, int64(0), p.Credits)
	assert.Equal(t, "password", p.AuthMethod)
	assert.NotEmpty(t, p.AccessToken)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
	assert.Equal(t, p.SessionID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 24*3600, cookies[0].MaxAge)
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t, allFeatures())
	s.signup(t, "alice@example.com")

	w := s.do(t, http.MethodPost, "/auth/register", gin.H{"email": "alice@example.com", "password": "other-password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email already registered", errorOf(t, w))

	w = s.do(t, http.MethodPost, "/auth/register", gin.H{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/auth/register", "{bad json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, allFeatures())
	s.signup(t, "alice@example.com")

	w := s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Incorrect email or password", errorOf(t, w))

	w = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	var p models.UserProfile
	decodeJSON(t, w, &p)
	assert.NotEmpty(t, p.SessionID)
}

func TestMeAndLogout(t *testing.T) {
	s := newTestServer(t, allFeatures())
	p := s.signup(t, "alice@example.com")

	w := s.do(t, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authenticated", errorOf(t, w))

	w = s.do(t, http.MethodGet, "/auth/me", nil, withSession(p.SessionID))
	require.Equal(t, http.StatusOK, w.Code)
	var me models.UserProfile
	decodeJSON(t, w, &me)
	assert.Equal(t, p.UserID, me.UserID)

	w = s.do(t, http.MethodGet, "/auth/me", nil, withHeader("Authorization", "Bearer "+p.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/auth/logout", nil, withSession(p.SessionID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, w.Body.String())
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)

	w = s.do(t, http.MethodGet, "/auth/me", nil, withSession(p.SessionID))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/auth/me", nil, withHeader("Authorization", "Bearer "+p.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_WithBearerOnly(t *testing.T) {
	s := newTestServer(t, allFeatures())
	p := s.signup(t, "alice@example.com")

	w := s.do(t, http.MethodPost, "/auth/logout", nil, withHeader("Authorization", "Bearer "+p.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/auth/me", nil, withSession(p.SessionID))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMFAFlow(t *testing.T) {
	s := newTestServer(t, allFeatures())
	p := s.signup(t, "alice@example.com")
	sess := withSession(p.SessionID)

	w := s.do(t, http.MethodPost, "/auth/mfa/verify", gin.H{"code": "123456"}, sess)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MFA not set up for this user", errorOf(t, w))

	w = s.do(t, http.MethodPost, "/auth/mfa/setup", nil, sess)
	require.Equal(t, http.StatusOK, w.Code)
	var setup models.MFASetup
	decodeJSON(t, w, &setup)
	require.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.QRCode, "data:image/png;base64,")

	w = s.do(t, http.MethodPost, "/auth/mfa/verify", gin.H{"code": "abcdef"}, sess)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid MFA code", errorOf(t, w))

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, "/auth/mfa/verify", gin.H{"code": code}, sess)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"MFA enabled successfully"}`, w.Body.String())

	u, err := s.store.GetUser(context.Background(), p.UserID)
	require.NoError(t, err)
	assert.True(t, u.MFAEnabled)

	w = s.do(t, http.MethodPost, "/auth/mfa/validate", gin.H{"code": code}, sess)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"MFA code is valid"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/auth/mfa/validate", gin.H{"code": "abcdef"}, sess)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/auth/mfa/validate", gin.H{}, sess)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGoogleRoutes(t *testing.T) {
	s := newTestServer(t, allFeatures())
	w := s.do(t, http.MethodGet, "/auth/google/login", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	features := allFeatures()
	features.GoogleEnabled = true
	s = newTestServer(t, features)

	w = s.do(t, http.MethodGet, "/auth/google/login", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Google OAuth is not configured", errorOf(t, w))
}
