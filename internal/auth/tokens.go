package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/infinitelandscape/server/internal/config"
)

// ErrTokensDisabled is returned when no token secret is configured.
var ErrTokensDisabled = errors.New("stream tokens are disabled")

// Claims represents stream token claims
type Claims struct {
	jwt.RegisteredClaims

	ViewerID string `json:"viewer_id"`
	Label    string `json:"label,omitempty"`
}

// TokenService issues and checks stream tokens.
// With an empty secret it is disabled and every stream is anonymous.
type TokenService struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewTokenService creates a token service from configuration
func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{
		secret: []byte(cfg.Auth.TokenSecret),
		issuer: cfg.Auth.TokenIssuer,
		expiry: cfg.Auth.TokenExpiration,
	}
}

// Enabled reports whether tokens are required.
func (s *TokenService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// GenerateStreamToken signs a token for viewerID
func (s *TokenService) GenerateStreamToken(viewerID, label string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrTokensDisabled
	}
	if viewerID == "" {
		return "", time.Time{}, errors.New("viewer id is required")
	}

	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   viewerID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		ViewerID: viewerID,
		Label:    label,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateStreamToken validates a token and returns its claims
func (s *TokenService) ValidateStreamToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrTokensDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.ViewerID == "" || claims.ViewerID != claims.Subject {
		return nil, errors.New("token has no viewer")
	}

	return claims, nil
}

// Expiration returns the lifetime of issued tokens
func (s *TokenService) Expiration() time.Duration {
	return s.expiry
}
