package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"authpay/models"
	"authpay/store"
)

const (
	GoogleIssuer  = "https://accounts.google.com"
	oauthStateTTL = 10 * time.Minute
)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// IssuerURL defaults to GoogleIssuer.
	IssuerURL string
}

type googleClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleService runs the authorization-code login against Google.
type GoogleService struct {
	cfg    GoogleConfig
	auth   *AuthService
	store  store.Store
	states *cache.Cache
	log    *logrus.Logger

	mu       sync.Mutex
	provider *oidc.Provider
}

func NewGoogleService(cfg GoogleConfig, auth *AuthService, st store.Store, log *logrus.Logger) *GoogleService {
	if cfg.IssuerURL == "" {
		cfg.IssuerURL = GoogleIssuer
	}
	return &GoogleService{
		cfg:    cfg,
		auth:   auth,
		store:  st,
		states: cache.New(oauthStateTTL, oauthStateTTL),
		log:    log,
	}
}

func (g *GoogleService) Configured() bool {
	return g.cfg.ClientID != ""
}

// discover fetches the provider metadata once and caches it.
func (g *GoogleService) discover(ctx context.Context) (*oidc.Provider, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.provider != nil {
		return g.provider, nil
	}
	p, err := oidc.NewProvider(ctx, g.cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	g.provider = p
	return p, nil
}

func (g *GoogleService) oauthConfig(p *oidc.Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		Endpoint:     p.Endpoint(),
		RedirectURL:  g.cfg.RedirectURL,
		Scopes:       []string{"email", "profile"},
	}
}

// LoginURL returns the consent URL and remembers its state for ten minutes.
func (g *GoogleService) LoginURL(ctx context.Context) (string, error) {
	if !g.Configured() {
		return "", ErrGoogleNotConfigured
	}
	p, err := g.discover(ctx)
	if err != nil {
		return "", googleError(err)
	}

	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)
	g.states.Set(state, struct{}{}, cache.DefaultExpiration)

	return g.oauthConfig(p).AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// Callback exchanges code for the Google identity and returns the matching local user.
func (g *GoogleService) Callback(ctx context.Context, code, state string) (*models.User, error) {
	if !g.Configured() {
		return nil, ErrGoogleNotConfigured
	}
	if _, ok := g.states.Get(state); !ok || state == "" {
		return nil, googleError(errors.New("invalid OAuth state"))
	}
	g.states.Delete(state)
	if code == "" {
		return nil, googleError(errors.New("missing authorization code"))
	}

	p, err := g.discover(ctx)
	if err != nil {
		return nil, googleError(err)
	}
	tok, err := g.oauthConfig(p).Exchange(ctx, code)
	if err != nil {
		return nil, googleError(err)
	}
	info, err := p.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, googleError(err)
	}
	var claims googleClaims
	if err := info.Claims(&claims); err != nil {
		return nil, googleError(err)
	}
	if claims.Email == "" {
		return nil, googleError(errors.New("missing email in userinfo"))
	}
	if claims.Sub == "" {
		claims.Sub = info.Subject
	}

	u, err := g.findOrCreate(ctx, claims)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, googleError(err)
	}
	return u, nil
}

func (g *GoogleService) findOrCreate(ctx context.Context, c googleClaims) (*models.User, error) {
	u, err := g.store.GetUserByEmail(ctx, c.Email)
	if errors.Is(err, store.ErrNotFound) {
		u, err = g.store.GetUserByProvider(ctx, ProviderGoogle, c.Sub)
	}
	switch {
	case err == nil:
		changed := false
		if u.ProviderUserID == "" {
			u.ProviderUserID = c.Sub
			changed = true
		}
		if u.Avatar == "" && c.Picture != "" {
			u.Avatar = c.Picture
			changed = true
		}
		if u.Name == "" && c.Name != "" {
			u.Name = c.Name
			changed = true
		}
		if changed {
			if err := g.store.UpdateUser(ctx, u); err != nil {
				return nil, err
			}
		}
		return u, nil
	case errors.Is(err, store.ErrNotFound):
		g.log.WithField("email", c.Email).Info("Registering Google user")
		return g.auth.Register(ctx, RegisterInput{
			Email:          c.Email,
			Name:           c.Name,
			Avatar:         c.Picture,
			Provider:       ProviderGoogle,
			ProviderUserID: c.Sub,
		})
	default:
		return nil, err
	}
}

func googleError(err error) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Message: "Failed to authenticate with Google: " + err.Error(),
		Err:     err,
	}
}
