// Package tokens issues and verifies HS256 service tokens, used when the
// service runs without an OIDC provider.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// Issue creates a signed JWT whose subject is the caller id.
func Issue(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type mapToken map[string]interface{}

func (t mapToken) Claims(v interface{}) error {
	b, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// HMACVerifier validates tokens produced by Issue.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}
}

func (h *HMACVerifier) parse(raw string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return h.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil {
		return nil, errors.New("verify token: missing exp claim")
	}
	return claims, nil
}

func (h *HMACVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	claims, err := h.parse(raw)
	if err != nil {
		return nil, err
	}
	return mapToken(claims), nil
}

// Remaining returns how long a valid token has left, for sizing revocations.
func (h *HMACVerifier) Remaining(raw string) (time.Duration, error) {
	claims, err := h.parse(raw)
	if err != nil {
		return 0, err
	}
	exp, _ := claims.GetExpirationTime()
	return time.Until(exp.Time), nil
}
