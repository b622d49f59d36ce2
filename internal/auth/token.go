package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/collabhub/collabhub/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidAccessToken is returned for unparsable, expired or forged access tokens
var ErrInvalidAccessToken = errors.New("invalid access token")

// TokenService issues HS256 access tokens and opaque refresh tokens.
type TokenService struct {
	cfg config.TokenConfig
	key []byte
	now func() time.Time
}

// TokenClaims represents the claims in an access token.
type TokenClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
	IsStaff bool   `json:"staff,omitempty"`
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// Subject is the identity an access token is issued for
type Subject struct {
	UserID  string
	Email   string
	Role    string
	IsStaff bool
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg config.TokenConfig) (*TokenService, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	return &TokenService{cfg: cfg, key: []byte(cfg.SigningKey), now: time.Now}, nil
}

// GenerateTokenPair signs an access token for sub and creates a refresh
// token. The refresh token hash is returned for storage.
func (s *TokenService) GenerateTokenPair(sub Subject) (*TokenPair, string, error) {
	now := s.now()

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			ID:        uuid.New().String(),
		},
		Email:   sub.Email,
		Role:    sub.Role,
		IsStaff: sub.IsStaff,
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, err := GenerateOpaqueToken(32)
	if err != nil {
		return nil, "", err
	}

	return &TokenPair{
		Access:    access,
		Refresh:   refresh,
		TokenType: "Bearer",
		ExpiresIn: int(s.cfg.AccessTokenTTL.Seconds()),
	}, HashToken(refresh), nil
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTokenTTL() time.Duration {
	return s.cfg.RefreshTokenTTL
}

// RevokedAccessKey is the cache key marking an access token as logged out
func RevokedAccessKey(jti string) string {
	return "access:revoked:" + jti
}

// RevokedBeforeKey is the cache key holding the instant before which every
// access token of userID is void
func RevokedBeforeKey(userID string) string {
	return "access:revoked_before:" + userID
}

// IssuedBefore reports whether claims were issued before cutoff. IssuedAt has
// second precision, so tokens from the cutoff's own second still pass.
func IssuedBefore(claims *TokenClaims, cutoff time.Time) bool {
	if cutoff.IsZero() || claims.IssuedAt == nil {
		return false
	}
	return claims.IssuedAt.Time.Before(cutoff.Truncate(time.Second))
}
