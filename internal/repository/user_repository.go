package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/collabhub/collabhub/internal/database"
	"github.com/collabhub/collabhub/internal/model"
)

const userColumns = `id, username, email, first_name, last_name, role, password_hash,
	is_verified, is_active, is_staff, mfa_enabled, mfa_secret, last_login_at, created_at, updated_at`

// UserRepository handles user data persistence
type UserRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.Postgres) *UserRepository {
	return &UserRepository{db: db}
}

// CreateWithProfile inserts a user and its empty profile in one transaction
func (r *UserRepository) CreateWithProfile(ctx context.Context, user *model.User) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO users (id, username, email, first_name, last_name, role, password_hash,
			    is_verified, is_active, is_staff, mfa_enabled, mfa_secret, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`
		_, err := tx.ExecContext(ctx, query,
			user.ID,
			user.Username,
			user.Email,
			user.FirstName,
			user.LastName,
			user.Role,
			user.PasswordHash,
			user.IsVerified,
			user.IsActive,
			user.IsStaff,
			user.MFAEnabled,
			user.MFASecret,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			if constraint, ok := isUniqueViolation(err); ok {
				return duplicateUserError(constraint)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		profileQuery := `INSERT INTO profiles (user_id, created_at, updated_at) VALUES ($1, $2, $2)`
		if _, err := tx.ExecContext(ctx, profileQuery, user.ID, user.CreatedAt); err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		return nil
	})
}

// duplicateUserError maps a users unique constraint to the column it guards
func duplicateUserError(constraint string) error {
	switch constraint {
	case "users_username_key", "users_username_lower_key":
		return ErrDuplicateUsername
	case "users_email_key", "users_email_lower_key":
		return ErrDuplicateEmail
	default:
		return ErrDuplicate
	}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// ExistsByEmail checks if a user with the given email exists
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return exists, nil
}

// ExistsByUsername checks if a username is taken
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return exists, nil
}

// UpdatePasswordHash updates the user's password hash
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, "update password", query, hash, time.Now(), id)
}

// UpdateRole changes the user's platform role
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role model.Role) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, "update role", query, role, time.Now(), id)
}

// TouchLastLogin records a successful login time
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`
	return r.execOne(ctx, "update last login", query, at, id)
}

func (r *UserRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.PasswordHash,
		&user.IsVerified,
		&user.IsActive,
		&user.IsStaff,
		&user.MFAEnabled,
		&user.MFASecret,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
