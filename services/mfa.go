package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"authpay/models"
	"authpay/store"
)

type MFAService struct {
	store  store.Store
	issuer string
	now    func() time.Time
}

func NewMFAService(st store.Store, issuer string) *MFAService {
	return &MFAService{store: st, issuer: issuer, now: time.Now}
}

// Setup generates a fresh secret for the user. MFA stays disabled until Enable succeeds.
func (m *MFAService) Setup(ctx context.Context, userID string) (*models.MFASetup, error) {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: m.issuer, AccountName: u.Email})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	u.MFASecret = key.Secret()
	u.MFAEnabled = false
	if err := m.store.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("save mfa secret: %w", err)
	}

	return &models.MFASetup{
		Secret: key.Secret(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Verify reports whether code matches the user's secret.
func (m *MFAService) Verify(ctx context.Context, userID, code string) (bool, error) {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return false, ErrUserNotFound
	}
	return m.check(u.MFASecret, code), nil
}

func (m *MFAService) check(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, m.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (m *MFAService) Enable(ctx context.Context, userID, code string) error {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}
	if u.MFASecret == "" {
		return ErrMFANotSetUp
	}
	if !m.check(u.MFASecret, code) {
		return ErrInvalidMFACode
	}
	u.MFAEnabled = true
	if err := m.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("enable mfa: %w", err)
	}
	return nil
}

// Validate checks a code for the user that owns sess.
func (m *MFAService) Validate(ctx context.Context, sess *models.Session, code string) error {
	ok, err := m.Verify(ctx, sess.UserID, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidMFACode
	}
	return nil
}

// Required reports whether the user must present an MFA code for sensitive calls.
func (m *MFAService) Required(ctx context.Context, userID string) (bool, error) {
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return false, ErrUserNotFound
	}
	return u.MFAEnabled, nil
}
