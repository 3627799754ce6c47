package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Webhook applies a Stripe event. The raw body is needed for signature checks.
func (a *API) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	result, err := a.Webhooks.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
