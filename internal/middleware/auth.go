package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrMissingToken = errors.New("bearer token is required")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims represents the JWT claims carried by a relay bearer token
type Claims struct {
	jwt.RegisteredClaims
}

// AuthConfig holds shared-secret authentication configuration
type AuthConfig struct {
	Secret        string
	TokenDuration time.Duration
	Issuer        string
}

// SharedSecretAuth issues and checks HS256 tokens signed with one shared secret
type SharedSecretAuth struct {
	config *AuthConfig
}

// NewSharedSecretAuth creates a new shared-secret authenticator
func NewSharedSecretAuth(config *AuthConfig) (*SharedSecretAuth, error) {
	if config == nil || config.Secret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour // Default to 24 hours
	}
	if config.Issuer == "" {
		config.Issuer = "gemini-relay-api"
	}
	return &SharedSecretAuth{config: config}, nil
}

// GenerateToken generates a token for subject. A ttl of zero uses the configured duration.
func (a *SharedSecretAuth) GenerateToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = a.config.TokenDuration
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.config.Issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(a.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a token and returns its claims
func (a *SharedSecretAuth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.Secret), nil
	}, jwt.WithIssuer(a.config.Issuer), jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Authorize checks a bearer token presented with a relay request
func (a *SharedSecretAuth) Authorize(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}
	_, err := a.ValidateToken(token)
	return err
}

// BearerToken extracts the token from an Authorization header value.
// It returns an empty string when the header is not in "Bearer <token>" form.
func BearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
