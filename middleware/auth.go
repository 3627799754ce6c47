package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"authpay/models"
	"authpay/services"
)

const (
	SessionCookie = "session_id"

	ctxUserID  = "userID"
	ctxSession = "session"
)

// AuthRequired resolves the caller from a Bearer token or the session cookie.
func AuthRequired(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sess *models.Session
		var err error

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			sess, err = auth.ResolveToken(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		} else {
			cookie, _ := c.Cookie(SessionCookie)
			sess, err = auth.ResolveSession(c.Request.Context(), cookie)
		}

		if err != nil {
			status, msg := services.StatusOf(err)
			if status == http.StatusUnauthorized {
				c.Header("WWW-Authenticate", "Bearer")
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		c.Set(ctxUserID, sess.UserID)
		c.Set(ctxSession, sess)
		c.Next()
	}
}

// UserID returns the authenticated user id set by AuthRequired.
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// Session returns the session set by AuthRequired, or nil.
func Session(c *gin.Context) *models.Session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*models.Session)
	return sess
}
