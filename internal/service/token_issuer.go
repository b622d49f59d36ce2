package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/repository"
)

const (
	defaultVerificationTTL = 24 * time.Hour
	defaultResetTTL        = time.Hour
)

// TokenIssuer creates and redeems the emailed single-use tokens. Only token
// hashes reach the store.
type TokenIssuer struct {
	store AccountTokenStore
	cfg   config.AccountTokensConfig
	now   func() time.Time
}

// NewTokenIssuer creates a new TokenIssuer
func NewTokenIssuer(store AccountTokenStore, cfg config.AccountTokensConfig) *TokenIssuer {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = defaultVerificationTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = defaultResetTTL
	}
	return &TokenIssuer{store: store, cfg: cfg, now: time.Now}
}

// TTL returns the lifetime of tokens for purpose
func (t *TokenIssuer) TTL(purpose model.TokenPurpose) time.Duration {
	if purpose == model.PurposePasswordReset {
		return t.cfg.ResetTTL
	}
	return t.cfg.VerificationTTL
}

// Issue creates a token for the user and invalidates every earlier unused
// token of the same purpose. The plaintext token is returned once.
func (t *TokenIssuer) Issue(ctx context.Context, userID string, purpose model.TokenPurpose, ip string) (string, error) {
	plain, err := auth.GenerateOpaqueToken(auth.AccountTokenBytes)
	if err != nil {
		return "", err
	}

	now := t.now()
	token := &model.AccountToken{
		ID:        generateID("tok"),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: auth.HashToken(plain),
		ExpiresAt: now.Add(t.TTL(purpose)),
		CreatedAt: now,
	}
	if purpose == model.PurposePasswordReset {
		token.IPAddress = cleanIP(ip)
	}

	if err := t.store.Issue(ctx, token); err != nil {
		return "", fmt.Errorf("failed to issue %s token: %w", purpose, err)
	}
	return plain, nil
}

// RedeemVerification marks a verification token used and verifies its
// owner in one step. It returns the owner's ID.
func (t *TokenIssuer) RedeemVerification(ctx context.Context, plain string) (string, error) {
	if plain == "" {
		return "", ErrTokenInvalid
	}
	token, err := t.store.RedeemVerification(ctx, auth.HashToken(plain), t.now())
	if err != nil {
		return "", mapTokenError(err)
	}
	return token.UserID, nil
}

// ValidateReset checks a reset token without consuming it
func (t *TokenIssuer) ValidateReset(ctx context.Context, plain string) (*model.AccountToken, error) {
	if plain == "" {
		return nil, ErrTokenInvalid
	}
	token, err := t.store.GetByHash(ctx, auth.HashToken(plain), model.PurposePasswordReset)
	if err != nil {
		return nil, mapTokenError(err)
	}
	if token.IsUsed() {
		return nil, ErrTokenAlreadyUsed
	}
	if token.IsExpired(t.now()) {
		return nil, ErrTokenExpired
	}
	return token, nil
}

// ConsumeReset redeems a reset token and stores passwordHash for its owner.
// Of two concurrent calls with one token only one succeeds.
func (t *TokenIssuer) ConsumeReset(ctx context.Context, plain, passwordHash string) (*model.AccountToken, error) {
	if plain == "" {
		return nil, ErrTokenInvalid
	}
	token, err := t.store.ConsumeReset(ctx, auth.HashToken(plain), passwordHash, t.now())
	if err != nil {
		return nil, mapTokenError(err)
	}
	return token, nil
}

// IssuedWithin counts tokens of purpose issued to the user during the last d
func (t *TokenIssuer) IssuedWithin(ctx context.Context, userID string, purpose model.TokenPurpose, d time.Duration) (int, error) {
	return t.store.CountIssuedSince(ctx, userID, purpose, t.now().Add(-d))
}

// Stats reports issued, used and expired counts per purpose
func (t *TokenIssuer) Stats(ctx context.Context) ([]model.TokenStats, error) {
	return t.store.Stats(ctx, t.now())
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrTokenInvalid
	case errors.Is(err, repository.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, repository.ErrUsed):
		return ErrTokenAlreadyUsed
	default:
		return err
	}
}
