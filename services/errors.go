package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries the HTTP status and client-facing message for a failed operation.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

var (
	ErrEmailTaken       = newError(http.StatusBadRequest, "Email already registered")
	ErrBadCredentials   = newError(http.StatusUnauthorized, "Incorrect email or password")
	ErrNotAuthenticated = newError(http.StatusUnauthorized, "Not authenticated")
	ErrInvalidSession   = newError(http.StatusUnauthorized, "Invalid session")
	ErrUserNotFound     = newError(http.StatusNotFound, "User not found")

	ErrInvalidMFACode = newError(http.StatusBadRequest, "Invalid MFA code")
	ErrMFANotSetUp    = newError(http.StatusBadRequest, "MFA not set up for this user")

	ErrGoogleNotConfigured = newError(http.StatusInternalServerError, "Google OAuth is not configured")

	ErrProductExists         = newError(http.StatusBadRequest, "Product with this name already exists")
	ErrProductNotFound       = newError(http.StatusNotFound, "Product not found")
	ErrProductNoPrice        = newError(http.StatusNotFound, "Product not found or has no price")
	ErrTierNotFound          = newError(http.StatusNotFound, "Subscription tier not found")
	ErrTokenProductNotFound  = newError(http.StatusNotFound, "Token product not found")
	ErrTokenAmount           = newError(http.StatusBadRequest, "Token amount must be positive")
	ErrNoCustomer            = newError(http.StatusBadRequest, "User has no Stripe customer ID")
	ErrCustomerNotFound      = newError(http.StatusNotFound, "Customer not found")
	ErrPaymentMethodNotFound = newError(http.StatusNotFound, "Payment method not found for this customer")

	ErrInvalidSignature = newError(http.StatusBadRequest, "Invalid signature")
	ErrInvalidPayload   = newError(http.StatusBadRequest, "Invalid JSON payload")
)

// providerError wraps a payment provider failure as a 400 carrying the provider message.
func providerError(msg string, err error) *Error {
	return &Error{Status: http.StatusBadRequest, Message: "Stripe error: " + msg, Err: err}
}

// StatusOf maps err to the HTTP status and message a handler should return.
func StatusOf(err error) (int, string) {
	var se *Error
	if errors.As(err, &se) {
		return se.Status, se.Message
	}
	return http.StatusInternalServerError, "Internal server error"
}
