package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"authpay/services"
)

const MFAHeader = "X-MFA-Token"

// RequireMFA demands a valid TOTP code in X-MFA-Token from users who enabled MFA.
// It must run after AuthRequired.
func RequireMFA(mfa *services.MFAService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)

		required, err := mfa.Required(c.Request.Context(), userID)
		if err != nil {
			status, msg := services.StatusOf(err)
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		if !required {
			c.Next()
			return
		}

		code := c.GetHeader(MFAHeader)
		if code == "" {
			c.Header("X-MFA-Required", "true")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "MFA token required"})
			return
		}

		ok, err := mfa.Verify(c.Request.Context(), userID, code)
		if err != nil || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid MFA token"})
			return
		}
		c.Next()
	}
}
