package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"authpay/config"
	"authpay/db"
	"authpay/handlers"
	"authpay/middleware"
	"authpay/services"
	"authpay/store"
)

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		log.WithField("log_level", level).Warn("Unknown log level, using info")
	}
	log.SetLevel(lvl)
	return log
}

type backends struct {
	store    store.Store
	sessions store.SessionStore
	sweep    services.Sweepable
	closers  []func() error
}

func (b *backends) Close() {
	for _, c := range b.closers {
		_ = c()
	}
}

// openBackends picks Postgres and Redis when configured and falls back to memory.
func openBackends(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*backends, error) {
	b := &backends{}

	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, conn.Close)
		if err := db.Migrate(ctx, conn); err != nil {
			b.Close()
			return nil, err
		}
		b.store = store.NewPostgres(conn)
		pgSessions := store.NewPostgresSessions(conn)
		b.sessions, b.sweep = pgSessions, pgSessions
		log.Info("Using PostgreSQL store")
	} else {
		b.store = store.NewMemory()
		memSessions := store.NewMemorySessions()
		b.sessions, b.sweep = memSessions, memSessions
		log.Info("Using in-memory store")
	}

	if cfg.RedisURL != "" {
		rs, err := store.NewRedisSessions(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, rs.Close)
		b.sessions, b.sweep = rs, nil
		log.Info("Using Redis session store")
	}
	return b, nil
}

func newGateway(cfg *config.Config, log *logrus.Logger) services.Gateway {
	if cfg.Stripe.TestMode() {
		log.Warn("Stripe test mode: payment calls are served by the fake gateway")
		return services.NewFakeGateway()
	}
	return services.NewStripeGateway(cfg.Stripe.SecretKey, nil)
}

// newServer wires services, middleware and routes into one handler.
func newServer(cfg *config.Config, b *backends, gw services.Gateway, log *logrus.Logger) http.Handler {
	notifier := services.NewNotifier(services.NotifierConfig{
		AppName:         cfg.AppName,
		SendGridAPIKey:  cfg.SendGrid.APIKey,
		FromEmail:       cfg.SendGrid.FromEmail,
		SlackWebhookURL: cfg.SendGrid.SlackWebhookURL,
	}, log)
	auth := services.NewAuthService(b.store, b.sessions, gw, services.NewTokenIssuer(cfg.JWTSecret), notifier, cfg.SessionTTL, log)

	api := &handlers.API{
		Auth: auth,
		MFA:  services.NewMFAService(b.store, cfg.AppName),
		Google: services.NewGoogleService(services.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		}, auth, b.store, log),
		Payments:    services.NewPaymentService(b.store, auth, gw, log),
		Webhooks:    services.NewWebhookService(b.store, gw, notifier, cfg.Stripe.WebhookSecret, log),
		Features:    cfg.Features,
		SessionTTL:  cfg.SessionTTL,
		BaseURL:     cfg.BaseURL,
		AppName:     cfg.AppName,
		Log:         log,
		AuthLimiter: middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst).Handler(),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(registry)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), metrics.Handler())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	api.Routes(r)

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.MFAHeader, "Stripe-Signature", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"X-MFA-Required", middleware.RequestIDHeader},
		AllowCredentials: true,
	}).Handler(r)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.WithFields(logrus.Fields{
		"google":         cfg.Features.GoogleEnabled,
		"mfa_enforced":   cfg.Features.MFAEnforced,
		"test_endpoints": cfg.Features.TestEndpointsEnabled,
		"ui":             cfg.Features.UIEnabled,
		"stripe_test":    cfg.Stripe.TestMode(),
	}).Info("Features")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.sweep != nil {
		go services.RunSessionSweeper(ctx, b.sweep, cfg.SweepInterval, log)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newServer(cfg, b, newGateway(cfg, log), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authpay:", err)
		os.Exit(1)
	}
}
