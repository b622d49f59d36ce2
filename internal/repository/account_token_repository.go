package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/collabhub/collabhub/internal/database"
	"github.com/collabhub/collabhub/internal/model"
)

// AccountTokenRepository persists email verification and password reset
// tokens. Issue and redeem paths run in transactions holding a row lock on
// the owning user so concurrent requests for one user serialize.
//
// Lock order is always users row first, then account_tokens rows. Any new
// transaction touching both tables must follow it or it can deadlock
// against Issue.
type AccountTokenRepository struct {
	db *database.Postgres
}

// NewAccountTokenRepository creates a new AccountTokenRepository
func NewAccountTokenRepository(db *database.Postgres) *AccountTokenRepository {
	return &AccountTokenRepository{db: db}
}

// Issue invalidates every unused token of the same purpose for the user and
// stores the new one.
func (r *AccountTokenRepository) Issue(ctx context.Context, token *model.AccountToken) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, token.UserID); err != nil {
			return err
		}

		invalidate := `
			UPDATE account_tokens SET used_at = $1
			WHERE user_id = $2 AND purpose = $3 AND used_at IS NULL
		`
		if _, err := tx.ExecContext(ctx, invalidate, token.CreatedAt, token.UserID, token.Purpose); err != nil {
			return fmt.Errorf("failed to invalidate previous tokens: %w", err)
		}

		insert := `
			INSERT INTO account_tokens (id, user_id, purpose, token_hash, ip_address, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := tx.ExecContext(ctx, insert,
			token.ID,
			token.UserID,
			token.Purpose,
			token.TokenHash,
			token.IPAddress,
			token.ExpiresAt,
			token.CreatedAt,
		)
		if err != nil {
			if _, ok := isUniqueViolation(err); ok {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to create account token: %w", err)
		}
		return nil
	})
}

// GetByHash retrieves a token by hash and purpose without modifying it
func (r *AccountTokenRepository) GetByHash(ctx context.Context, tokenHash string, purpose model.TokenPurpose) (*model.AccountToken, error) {
	query := `
		SELECT id, user_id, purpose, token_hash, host(ip_address), expires_at, used_at, created_at
		FROM account_tokens
		WHERE token_hash = $1 AND purpose = $2
	`
	return scanAccountToken(r.db.QueryRowContext(ctx, query, tokenHash, purpose))
}

// RedeemVerification marks a verification token used and flips the owner's
// verified flag. Both writes commit together or not at all.
func (r *AccountTokenRepository) RedeemVerification(ctx context.Context, tokenHash string, now time.Time) (*model.AccountToken, error) {
	var redeemed *model.AccountToken
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		token, err := lockUsableToken(ctx, tx, tokenHash, model.PurposeEmailVerification, now)
		if err != nil {
			return err
		}

		if err := markTokenUsed(ctx, tx, token.ID, now); err != nil {
			return err
		}

		query := `UPDATE users SET is_verified = TRUE, updated_at = $1 WHERE id = $2`
		result, err := tx.ExecContext(ctx, query, now, token.UserID)
		if err != nil {
			return fmt.Errorf("failed to verify user: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		token.UsedAt = &now
		redeemed = token
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

// ConsumeReset marks a reset token used, stores the new password hash,
// invalidates the user's other unused reset tokens and revokes their refresh
// tokens.
func (r *AccountTokenRepository) ConsumeReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*model.AccountToken, error) {
	var consumed *model.AccountToken
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		token, err := lockUsableToken(ctx, tx, tokenHash, model.PurposePasswordReset, now)
		if err != nil {
			return err
		}

		if err := markTokenUsed(ctx, tx, token.ID, now); err != nil {
			return err
		}

		query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
		if _, err := tx.ExecContext(ctx, query, passwordHash, now, token.UserID); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}

		others := `
			UPDATE account_tokens SET used_at = $1
			WHERE user_id = $2 AND purpose = $3 AND used_at IS NULL
		`
		if _, err := tx.ExecContext(ctx, others, now, token.UserID, model.PurposePasswordReset); err != nil {
			return fmt.Errorf("failed to invalidate reset tokens: %w", err)
		}

		revoke := `UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`
		if _, err := tx.ExecContext(ctx, revoke, now, token.UserID); err != nil {
			return fmt.Errorf("failed to revoke refresh tokens: %w", err)
		}

		token.UsedAt = &now
		consumed = token
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

// CountIssuedSince returns how many tokens of a purpose were issued to the
// user since the given time.
func (r *AccountTokenRepository) CountIssuedSince(ctx context.Context, userID string, purpose model.TokenPurpose, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM account_tokens WHERE user_id = $1 AND purpose = $2 AND created_at >= $3`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, purpose, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count account tokens: %w", err)
	}
	return count, nil
}

// Stats reports per-purpose token counts
func (r *AccountTokenRepository) Stats(ctx context.Context, now time.Time) ([]model.TokenStats, error) {
	query := `
		SELECT purpose,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE used_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE used_at IS NULL AND expires_at <= $1)
		FROM account_tokens
		GROUP BY purpose
		ORDER BY purpose
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query token stats: %w", err)
	}
	defer rows.Close()

	var stats []model.TokenStats
	for rows.Next() {
		var s model.TokenStats
		if err := rows.Scan(&s.Purpose, &s.Issued, &s.Used, &s.ExpiredUnused); err != nil {
			return nil, fmt.Errorf("failed to scan token stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func lockUser(ctx context.Context, tx *sql.Tx, userID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// lockUsableToken locks the owning user and then the token, and checks the
// token can still be redeemed. A concurrent redeemer blocks on the user lock
// and then observes used_at.
func lockUsableToken(ctx context.Context, tx *sql.Tx, tokenHash string, purpose model.TokenPurpose, now time.Time) (*model.AccountToken, error) {
	var userID string
	err := tx.QueryRowContext(ctx,
		`SELECT user_id FROM account_tokens WHERE token_hash = $1 AND purpose = $2`,
		tokenHash, purpose,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account token: %w", err)
	}
	if err := lockUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, purpose, token_hash, host(ip_address), expires_at, used_at, created_at
		FROM account_tokens
		WHERE token_hash = $1 AND purpose = $2
		FOR UPDATE
	`
	token, err := scanAccountToken(tx.QueryRowContext(ctx, query, tokenHash, purpose))
	if err != nil {
		return nil, err
	}
	if token.IsUsed() {
		return nil, ErrUsed
	}
	if token.IsExpired(now) {
		return nil, ErrExpired
	}
	return token, nil
}

func markTokenUsed(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	result, err := tx.ExecContext(ctx, `UPDATE account_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUsed
	}
	return nil
}

func scanAccountToken(row rowScanner) (*model.AccountToken, error) {
	var t model.AccountToken
	var ip sql.NullString
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Purpose,
		&t.TokenHash,
		&ip,
		&t.ExpiresAt,
		&t.UsedAt,
		&t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account token: %w", err)
	}
	if ip.Valid {
		t.IPAddress = &ip.String
	}
	return &t, nil
}
