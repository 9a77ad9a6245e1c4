package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("token secret is empty")
	ErrEmptySubject = errors.New("token subject is empty")
)

// Claims are the claims carried by a service token.
type Claims struct {
	jwt.RegisteredClaims
}

// ServiceTokens issues and verifies HS256 tokens for internal callers of
// the trigger endpoint.
type ServiceTokens struct {
	secret []byte
	now    func() time.Time
}

// NewServiceTokens creates a token signer/verifier for secret.
func NewServiceTokens(secret string) (*ServiceTokens, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &ServiceTokens{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for subject. A non-positive ttl yields a token without expiry.
func (s *ServiceTokens) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and checks its signature and expiry. Only
// HMAC-signed tokens are accepted.
func (s *ServiceTokens) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
