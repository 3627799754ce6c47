package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// StripeTestKey is the placeholder secret that keeps the gateway in test mode.
const StripeTestKey = "sk_test_12345"

type Config struct {
	Port        string
	BaseURL     string
	AppName     string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	JWTSecret  string
	SessionTTL time.Duration

	CORSOrigins   []string
	AuthRateLimit float64
	AuthRateBurst int
	SweepInterval time.Duration

	Google   GoogleConfig
	Stripe   StripeConfig
	SendGrid SendGridConfig
	Features Features
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
}

// TestMode reports whether Stripe calls should be served by the in-process fake.
func (s StripeConfig) TestMode() bool {
	return s.SecretKey == "" || s.SecretKey == StripeTestKey
}

type SendGridConfig struct {
	APIKey          string
	FromEmail       string
	SlackWebhookURL string
}

// Load reads .env (if present), then the environment and an optional CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("port", "8000")
	v.SetDefault("api_base_url", "http://localhost:8000")
	v.SetDefault("api_app_name", "API")
	v.SetDefault("log_level", "info")
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("auth_rate_limit", 5.0)
	v.SetDefault("auth_rate_burst", 20)
	v.SetDefault("session_sweep_interval", time.Minute)
	v.SetDefault("google_redirect_uri", "http://localhost:8000/auth/google/callback")

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:          v.GetString("port"),
		BaseURL:       strings.TrimRight(v.GetString("api_base_url"), "/"),
		AppName:       v.GetString("api_app_name"),
		DatabaseURL:   v.GetString("database_url"),
		RedisURL:      v.GetString("redis_url"),
		LogLevel:      v.GetString("log_level"),
		JWTSecret:     v.GetString("jwt_secret_key"),
		SessionTTL:    v.GetDuration("session_ttl"),
		CORSOrigins:   splitList(v.GetString("cors_origins")),
		AuthRateLimit: v.GetFloat64("auth_rate_limit"),
		AuthRateBurst: v.GetInt("auth_rate_burst"),
		SweepInterval: v.GetDuration("session_sweep_interval"),
		Google: GoogleConfig{
			ClientID:     v.GetString("google_client_id"),
			ClientSecret: v.GetString("google_client_secret"),
			RedirectURL:  v.GetString("google_redirect_uri"),
		},
		Stripe: StripeConfig{
			SecretKey:      v.GetString("stripe_secret_key"),
			PublishableKey: v.GetString("stripe_publishable_key"),
			WebhookSecret:  v.GetString("stripe_webhook_secret"),
		},
		SendGrid: SendGridConfig{
			APIKey:          v.GetString("sendgrid_api_key"),
			FromEmail:       v.GetString("sendgrid_from_email"),
			SlackWebhookURL: v.GetString("slack_webhook_url"),
		},
		Features: loadFeatures(v),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if c.JWTSecret == "" && !c.Stripe.TestMode() {
		return fmt.Errorf("JWT_SECRET_KEY is required outside test mode")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
