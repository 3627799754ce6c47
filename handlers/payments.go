package handlers

import (
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"authpay/middleware"
	"authpay/services"
)

type ProductRequest struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Price       *float64          `json:"price"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

type CheckoutRequest struct {
	ProductID  string `json:"product_id" binding:"required"`
	SuccessURL string `json:"success_url" binding:"required"`
	CancelURL  string `json:"cancel_url" binding:"required"`
}

type SubscribeRequest struct {
	Tier       string `json:"tier" binding:"required"`
	SuccessURL string `json:"success_url" binding:"required"`
	CancelURL  string `json:"cancel_url" binding:"required"`
}

type TokenPurchaseRequest struct {
	Amount     int64  `json:"amount"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type PaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

func (a *API) ListProducts(c *gin.Context) {
	products, err := a.Payments.ListProducts(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (a *API) CreateProduct(c *gin.Context) {
	var input ProductRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := services.ProductInput{
		Name:        input.Name,
		Description: input.Description,
		Currency:    input.Currency,
		Metadata:    input.Metadata,
	}
	if input.Price != nil {
		if *input.Price < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Price must not be negative"})
			return
		}
		cents := int64(math.Round(*input.Price * 100))
		in.PriceCents = &cents
	}

	product, err := a.Payments.CreateProduct(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *API) DeleteProduct(c *gin.Context) {
	name := c.Param("name")
	if err := a.Payments.DeleteProduct(c.Request.Context(), name); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Product '%s' deleted successfully", name)})
}

func (a *API) SubscriptionTiers(c *gin.Context) {
	c.JSON(http.StatusOK, a.Payments.SubscriptionTiers())
}

func (a *API) InitializeProducts(c *gin.Context) {
	result, err := a.Payments.InitializeProducts(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) Checkout(c *gin.Context) {
	var input CheckoutRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := a.Payments.CheckoutProduct(c.Request.Context(), middleware.UserID(c), input.ProductID,
		services.CheckoutInput{SuccessURL: input.SuccessURL, CancelURL: input.CancelURL})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *API) Subscribe(c *gin.Context) {
	var input SubscribeRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := a.Payments.Subscribe(c.Request.Context(), middleware.UserID(c), input.Tier,
		services.CheckoutInput{SuccessURL: input.SuccessURL, CancelURL: input.CancelURL})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *API) BuyTokens(c *gin.Context) {
	var input TokenPurchaseRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := a.Payments.BuyTokens(c.Request.Context(), middleware.UserID(c), input.Amount,
		services.CheckoutInput{SuccessURL: input.SuccessURL, CancelURL: input.CancelURL})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *API) TestBuyTokens(c *gin.Context) {
	var input TokenPurchaseRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := a.Payments.TestBuyTokens(c.Request.Context(), middleware.UserID(c), input.Amount)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *API) MyPayments(c *gin.Context) {
	payments, err := a.Payments.ListPayments(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (a *API) MySubscriptions(c *gin.Context) {
	subs, err := a.Payments.ListSubscriptions(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (a *API) Customer(c *gin.Context) {
	customer, err := a.Payments.Customer(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (a *API) ListPaymentMethods(c *gin.Context) {
	methods, err := a.Payments.PaymentMethods(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, methods)
}

func (a *API) AddPaymentMethod(c *gin.Context) {
	var input PaymentMethodRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.Payments.AddPaymentMethod(c.Request.Context(), middleware.UserID(c), input.PaymentMethodID); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "payment_method_id": input.PaymentMethodID})
}

func (a *API) SetDefaultPaymentMethod(c *gin.Context) {
	id := c.Param("id")
	if err := a.Payments.SetDefaultPaymentMethod(c.Request.Context(), middleware.UserID(c), id); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "default_payment_method": id})
}

func (a *API) DeletePaymentMethod(c *gin.Context) {
	id := c.Param("id")
	if err := a.Payments.DeletePaymentMethod(c.Request.Context(), middleware.UserID(c), id); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_payment_method": id})
}

func (a *API) CreateSetupIntent(c *gin.Context) {
	intent, err := a.Payments.CreateSetupIntent(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}
