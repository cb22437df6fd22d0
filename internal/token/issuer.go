package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gotham-cipher/internal/config"
)

// Claims is the session token payload
type Claims struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies compact bearer session tokens
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewIssuer creates a token issuer from configuration
func NewIssuer(cfg *config.TokenConfig) *Issuer {
	return &Issuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
	}
}

// Issue signs a token for the given subject
func (i *Issuer) Issue(subject, email, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:    email,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Refresh issues a fresh token carrying the same identity
func (i *Issuer) Refresh(tokenString string) (string, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return i.Issue(claims.Subject, claims.Email, claims.Username)
}

// ExtractBearer pulls the token out of an Authorization header value
func ExtractBearer(authHeader string) string {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
