package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mfaRouter(env *testEnv) *gin.Engine {
	r := gin.New()
	r.POST("/sensitive", AuthRequired(env.auth), RequireMFA(env.mfa), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func sensitiveRequest(env *testEnv, sessionID, code string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sensitive", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sessionID})
	if code != "" {
		req.Header.Set(MFAHeader, code)
	}
	w := httptest.NewRecorder()
	mfaRouter(env).ServeHTTP(w, req)
	return w
}

func TestRequireMFA_PassesWhenDisabled(t *testing.T) {
	env := newTestEnv(t)
	profile := env.login(t, "alice@example.com")

	w := sensitiveRequest(env, profile.SessionID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireMFA_Enforced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	profile := env.login(t, "alice@example.com")

	setup, err := env.mfa.Setup(ctx, profile.UserID)
	require.NoError(t, err)
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.mfa.Enable(ctx, profile.UserID, code))

	w := sensitiveRequest(env, profile.SessionID, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-MFA-Required"))
	assert.Equal(t, "MFA token required", decode(t, w)["error"])

	w = sensitiveRequest(env, profile.SessionID, "abcdef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid MFA token", decode(t, w)["error"])

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	w = sensitiveRequest(env, profile.SessionID, code)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireMFA_SecretWithoutEnableIsNotEnforced(t *testing.T) {
	env := newTestEnv(t)
	profile := env.login(t, "alice@example.com")

	_, err := env.mfa.Setup(context.Background(), profile.UserID)
	require.NoError(t, err)

	w := sensitiveRequest(env, profile.SessionID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
