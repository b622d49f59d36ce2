package storefakes

import (
	"context"
	"time"

	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/repository"
)

// MFA mimics repository.MFARepository
type MFA struct{ db *DB }

func (s *MFA) SetPendingSecret(_ context.Context, userID, sealed string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[userID]
	if !ok || u.MFAEnabled {
		return repository.ErrConflict
	}
	u.MFASecret = sealed
	return nil
}

func (s *MFA) Enable(_ context.Context, userID, sealed string, codes []*model.BackupCode) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[userID]
	if !ok || u.MFAEnabled || u.MFASecret != sealed {
		return repository.ErrConflict
	}
	u.MFAEnabled = true
	s.replace(userID, codes)
	return nil
}

func (s *MFA) Disable(_ context.Context, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[userID]
	if !ok || !u.MFAEnabled {
		return repository.ErrConflict
	}
	u.MFAEnabled = false
	u.MFASecret = ""
	s.replace(userID, nil)
	return nil
}

func (s *MFA) ReplaceBackupCodes(_ context.Context, userID string, codes []*model.BackupCode) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if !u.MFAEnabled {
		return repository.ErrConflict
	}
	s.replace(userID, codes)
	return nil
}

func (s *MFA) replace(userID string, codes []*model.BackupCode) {
	for id, c := range s.db.backup {
		if c.UserID == userID {
			delete(s.db.backup, id)
		}
	}
	for _, c := range codes {
		clone := *c
		s.db.backup[c.ID] = &clone
	}
}

func (s *MFA) GetUnusedBackupCodes(_ context.Context, userID string) ([]*model.BackupCode, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*model.BackupCode
	for _, c := range s.db.backup {
		if c.UserID == userID && c.UsedAt == nil {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *MFA) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	codes, err := s.GetUnusedBackupCodes(ctx, userID)
	return len(codes), err
}

func (s *MFA) ConsumeBackupCode(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.backup[id]
	if !ok || c.UsedAt != nil {
		return repository.ErrConflict
	}
	now := time.Now()
	c.UsedAt = &now
	return nil
}
