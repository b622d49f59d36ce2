package storefakes

import (
	"context"
	"time"

	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/repository"
)

// AccountTokens mimics repository.AccountTokenRepository
type AccountTokens struct{ db *DB }

func (s *AccountTokens) Issue(_ context.Context, token *model.AccountToken) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[token.UserID]; !ok {
		return repository.ErrNotFound
	}
	for _, t := range s.db.tokens {
		if t.UserID == token.UserID && t.Purpose == token.Purpose && t.UsedAt == nil {
			at := token.CreatedAt
			t.UsedAt = &at
		}
	}
	clone := *token
	s.db.tokens[token.ID] = &clone
	return nil
}

func (s *AccountTokens) find(hash string, purpose model.TokenPurpose) *model.AccountToken {
	for _, t := range s.db.tokens {
		if t.TokenHash == hash && t.Purpose == purpose {
			return t
		}
	}
	return nil
}

func (s *AccountTokens) GetByHash(_ context.Context, hash string, purpose model.TokenPurpose) (*model.AccountToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t := s.find(hash, purpose)
	if t == nil {
		return nil, repository.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *AccountTokens) usable(hash string, purpose model.TokenPurpose, now time.Time) (*model.AccountToken, error) {
	t := s.find(hash, purpose)
	if t == nil {
		return nil, repository.ErrNotFound
	}
	if t.IsUsed() {
		return nil, repository.ErrUsed
	}
	if t.IsExpired(now) {
		return nil, repository.ErrExpired
	}
	return t, nil
}

func (s *AccountTokens) RedeemVerification(_ context.Context, hash string, now time.Time) (*model.AccountToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, err := s.usable(hash, model.PurposeEmailVerification, now)
	if err != nil {
		return nil, err
	}
	u, ok := s.db.users[t.UserID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.UsedAt = &now
	u.IsVerified = true
	clone := *t
	return &clone, nil
}

func (s *AccountTokens) ConsumeReset(_ context.Context, hash, passwordHash string, now time.Time) (*model.AccountToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, err := s.usable(hash, model.PurposePasswordReset, now)
	if err != nil {
		return nil, err
	}
	t.UsedAt = &now
	if u, ok := s.db.users[t.UserID]; ok {
		u.PasswordHash = passwordHash
	}
	for _, other := range s.db.tokens {
		if other.UserID == t.UserID && other.Purpose == model.PurposePasswordReset && other.UsedAt == nil {
			other.UsedAt = &now
		}
	}
	for _, rt := range s.db.refresh {
		if rt.UserID == t.UserID && rt.RevokedAt == nil {
			rt.RevokedAt = &now
		}
	}
	clone := *t
	return &clone, nil
}

func (s *AccountTokens) CountIssuedSince(_ context.Context, userID string, purpose model.TokenPurpose, since time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, t := range s.db.tokens {
		if t.UserID == userID && t.Purpose == purpose && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *AccountTokens) Stats(_ context.Context, now time.Time) ([]model.TokenStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	byPurpose := map[model.TokenPurpose]*model.TokenStats{}
	for _, t := range s.db.tokens {
		st, ok := byPurpose[t.Purpose]
		if !ok {
			st = &model.TokenStats{Purpose: t.Purpose}
			byPurpose[t.Purpose] = st
		}
		st.Issued++
		if t.UsedAt != nil {
			st.Used++
		} else if t.IsExpired(now) {
			st.ExpiredUnused++
		}
	}
	var out []model.TokenStats
	for _, p := range []model.TokenPurpose{model.PurposeEmailVerification, model.PurposePasswordReset} {
		if st, ok := byPurpose[p]; ok {
			out = append(out, *st)
		}
	}
	return out, nil
}

// RefreshTokens mimics repository.RefreshTokenRepository
type RefreshTokens struct{ db *DB }

func (s *RefreshTokens) Create(_ context.Context, token *model.RefreshToken) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	clone := *token
	s.db.refresh[token.ID] = &clone
	return nil
}

func (s *RefreshTokens) GetByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, t := range s.db.refresh {
		if t.TokenHash == hash {
			clone := *t
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *RefreshTokens) Revoke(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.refresh[id]
	if !ok || t.RevokedAt != nil {
		return repository.ErrConflict
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (s *RefreshTokens) RevokeAllForUser(_ context.Context, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now()
	for _, t := range s.db.refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}
