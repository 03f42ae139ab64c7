// Package auth implements local account authentication: bcrypt password
// hashing and HS256-signed access tokens carrying the user's role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agroplanner/opscenter-sync/internal/models"
)

// ErrInvalidToken is returned when a token fails signature or claims validation
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims carried by issued access tokens
type Claims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates access tokens with a shared HS256 key
type TokenIssuer struct {
	signingKey []byte
	tokenTTL   time.Duration
}

// NewTokenIssuer creates a token issuer with the given signing key and
// token lifetime.
func NewTokenIssuer(signingKey []byte, tokenTTL time.Duration) (*TokenIssuer, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key must not be empty")
	}
	if tokenTTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive, got %s", tokenTTL)
	}
	return &TokenIssuer{
		signingKey: signingKey,
		tokenTTL:   tokenTTL,
	}, nil
}

// Issue creates a signed access token for the given user
func (i *TokenIssuer) Issue(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies an access token, returning its claims
func (i *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// TokenTTL returns the configured token lifetime
func (i *TokenIssuer) TokenTTL() time.Duration {
	return i.tokenTTL
}
