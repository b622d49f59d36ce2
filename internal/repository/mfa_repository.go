package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/collabhub/collabhub/internal/database"
	"github.com/collabhub/collabhub/internal/model"
)

// MFARepository handles the MFA columns of the user record and the backup
// code table. Every state transition is a guarded UPDATE so concurrent
// requests cannot both win.
type MFARepository struct {
	db *database.Postgres
}

// NewMFARepository creates a new MFARepository
func NewMFARepository(db *database.Postgres) *MFARepository {
	return &MFARepository{db: db}
}

// SetPendingSecret stores an unconfirmed TOTP secret. It fails with
// ErrConflict when MFA is already enabled.
func (r *MFARepository) SetPendingSecret(ctx context.Context, userID, sealedSecret string) error {
	query := `
		UPDATE users SET mfa_secret = $1, updated_at = $2
		WHERE id = $3 AND mfa_enabled = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, sealedSecret, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to store pending MFA secret: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// Enable confirms the pending secret and stores the initial backup codes.
// The update only applies if the pending secret is still the one that was
// verified.
func (r *MFARepository) Enable(ctx context.Context, userID, sealedSecret string, codes []*model.BackupCode) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE users SET mfa_enabled = TRUE, updated_at = $1
			WHERE id = $2 AND mfa_enabled = FALSE AND mfa_secret = $3
		`
		result, err := tx.ExecContext(ctx, query, time.Now(), userID, sealedSecret)
		if err != nil {
			return fmt.Errorf("failed to enable MFA: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrConflict
		}
		return replaceBackupCodes(ctx, tx, userID, codes)
	})
}

// Disable clears the secret and every backup code for an enabled user
func (r *MFARepository) Disable(ctx context.Context, userID string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE users SET mfa_enabled = FALSE, mfa_secret = '', updated_at = $1
			WHERE id = $2 AND mfa_enabled = TRUE
		`
		result, err := tx.ExecContext(ctx, query, time.Now(), userID)
		if err != nil {
			return fmt.Errorf("failed to disable MFA: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrConflict
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		return nil
	})
}

// ReplaceBackupCodes swaps the whole backup code set of an enabled user
func (r *MFARepository) ReplaceBackupCodes(ctx context.Context, userID string, codes []*model.BackupCode) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var enabled bool
		err := tx.QueryRowContext(ctx, `SELECT mfa_enabled FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&enabled)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}
		if !enabled {
			return ErrConflict
		}
		return replaceBackupCodes(ctx, tx, userID, codes)
	})
}

func replaceBackupCodes(ctx context.Context, tx *sql.Tx, userID string, codes []*model.BackupCode) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}

	query := `INSERT INTO backup_codes (id, user_id, code_hash, created_at) VALUES ($1, $2, $3, $4)`
	for _, code := range codes {
		if _, err := tx.ExecContext(ctx, query, code.ID, code.UserID, code.CodeHash, code.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert backup code: %w", err)
		}
	}
	return nil
}

// GetUnusedBackupCodes retrieves all unused backup codes for a user
func (r *MFARepository) GetUnusedBackupCodes(ctx context.Context, userID string) ([]*model.BackupCode, error) {
	query := `
		SELECT id, user_id, code_hash, used_at, created_at
		FROM backup_codes
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup codes: %w", err)
	}
	defer rows.Close()

	var codes []*model.BackupCode
	for rows.Next() {
		var c model.BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup code: %w", err)
		}
		codes = append(codes, &c)
	}
	return codes, rows.Err()
}

// CountUnusedBackupCodes returns the count of remaining unused backup codes
func (r *MFARepository) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM backup_codes WHERE user_id = $1 AND used_at IS NULL`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}

// ConsumeBackupCode marks a code used. Exactly one caller wins for a given
// code; the others get ErrConflict.
func (r *MFARepository) ConsumeBackupCode(ctx context.Context, id string) error {
	query := `UPDATE backup_codes SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to consume backup code: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}
