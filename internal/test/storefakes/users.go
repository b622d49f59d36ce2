package storefakes

import (
	"context"
	"strings"
	"time"

	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/repository"
)

// Users mimics repository.UserRepository
type Users struct{ db *DB }

func (s *Users) CreateWithProfile(_ context.Context, user *model.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Username, user.Username) {
			return repository.ErrDuplicateUsername
		}
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	clone := *user
	s.db.users[user.ID] = &clone
	return nil
}

func (s *Users) GetByID(_ context.Context, id string) (*model.User, error) {
	if u := s.db.User(id); u != nil {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (s *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	return err == nil, nil
}

func (s *Users) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Users) update(id string, fn func(u *model.User)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func (s *Users) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	return s.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (s *Users) UpdateRole(_ context.Context, id string, role model.Role) error {
	return s.update(id, func(u *model.User) { u.Role = role })
}

func (s *Users) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *model.User) { u.LastLoginAt = &at })
}
