package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"authpay/models"
	"authpay/services"
)

// ErrUnauthorized is returned when the API rejects the admin credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Client talks to the authpay HTTP API and keeps the session cookie between calls.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}, nil
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

func (e *apiError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, nil)
}

func (c *Client) Register(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/register",
		map[string]string{"email": email, "password": password, "name": "Admin"}, nil)
}

// LoginOrRegister signs in, creating the account first if the credentials are unknown.
func (c *Client) LoginOrRegister(ctx context.Context, email, password string) error {
	err := c.Login(ctx, email, password)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}
	if err := c.Register(ctx, email, password); err != nil {
		return fmt.Errorf("register %s: %w", email, err)
	}
	return nil
}

func (c *Client) InitializeProducts(ctx context.Context) (*services.InitializeResult, error) {
	var res services.InitializeResult
	if err := c.do(ctx, http.MethodPost, "/payments/initialize-products", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := c.do(ctx, http.MethodGet, "/payments/products", nil, &products)
	return products, err
}

func (c *Client) DeleteProduct(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/payments/products/"+url.PathEscape(name), nil, nil)
}

func (c *Client) Tiers(ctx context.Context) ([]models.SubscriptionTier, error) {
	var tiers []models.SubscriptionTier
	err := c.do(ctx, http.MethodGet, "/payments/subscription-tiers", nil, &tiers)
	return tiers, err
}
