package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs access tokens that point at a server-side session.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer uses secret, or a random key when secret is empty so tokens
// only survive for the life of the process.
func NewTokenIssuer(secret string) *TokenIssuer {
	if secret != "" {
		return &TokenIssuer{secret: []byte(secret)}
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("generate jwt key: %v", err))
	}
	return &TokenIssuer{secret: key}
}

func (t *TokenIssuer) Issue(userID, sessionID string, expires time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	return token.SignedString(t.secret)
}

// Parse validates raw and returns the user and session ids it carries.
func (t *TokenIssuer) Parse(raw string) (userID, sessionID string, err error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid || claims.Subject == "" || claims.SessionID == "" {
		return "", "", errors.New("invalid token claims")
	}
	return claims.Subject, claims.SessionID, nil
}
