package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/collabhub/collabhub/internal/database"
	"github.com/collabhub/collabhub/internal/model"
)

// GDPRRepository handles right-to-erasure bookkeeping
type GDPRRepository struct {
	db *database.Postgres
}

// NewGDPRRepository creates a new GDPRRepository
func NewGDPRRepository(db *database.Postgres) *GDPRRepository {
	return &GDPRRepository{db: db}
}

// CreateDeletionRequest records a new deletion request
func (r *GDPRRepository) CreateDeletionRequest(ctx context.Context, req *model.DataDeletionRequest) error {
	query := `
		INSERT INTO data_deletion_requests (id, user_id, user_email, status, reason, ip_address, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.UserID,
		req.UserEmail,
		req.Status,
		req.Reason,
		req.IPAddress,
		req.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create deletion request: %w", err)
	}
	return nil
}

// FinishDeletionRequest stores the final status and log of a request
func (r *GDPRRepository) FinishDeletionRequest(ctx context.Context, req *model.DataDeletionRequest) error {
	deletionLog, err := json.Marshal(req.DeletionLog)
	if err != nil || req.DeletionLog == nil {
		deletionLog = []byte("{}")
	}
	query := `
		UPDATE data_deletion_requests
		SET status = $1, deletion_log = $2, completed_at = $3, user_id = $4
		WHERE id = $5
	`
	_, err = r.db.ExecContext(ctx, query, req.Status, deletionLog, req.CompletedAt, req.UserID, req.ID)
	if err != nil {
		return fmt.Errorf("failed to update deletion request: %w", err)
	}
	return nil
}

// UpsertConsent stores a consent decision, replacing the user's previous
// decision for the same type. consent.ID and Timestamp are refreshed from
// the stored row.
func (r *GDPRRepository) UpsertConsent(ctx context.Context, consent *model.ConsentRecord) error {
	query := `
		INSERT INTO consent_records (id, user_id, consent_type, granted, consent_text, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, consent_type) DO UPDATE
		SET granted = EXCLUDED.granted,
		    consent_text = EXCLUDED.consent_text,
		    ip_address = EXCLUDED.ip_address,
		    user_agent = EXCLUDED.user_agent,
		    timestamp = EXCLUDED.timestamp
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		consent.ID,
		consent.UserID,
		consent.ConsentType,
		consent.Granted,
		consent.ConsentText,
		consent.IPAddress,
		consent.UserAgent,
		consent.Timestamp,
	).Scan(&consent.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to record consent: %w", err)
	}
	return nil
}

// ListConsents returns the user's consent decisions, newest first
func (r *GDPRRepository) ListConsents(ctx context.Context, userID string) ([]model.ConsentRecord, error) {
	query := `
		SELECT id, user_id, consent_type, granted, consent_text, host(ip_address), user_agent, timestamp
		FROM consent_records
		WHERE user_id = $1
		ORDER BY timestamp DESC, consent_type ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consents: %w", err)
	}
	defer rows.Close()

	var consents []model.ConsentRecord
	for rows.Next() {
		var c model.ConsentRecord
		var ip sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.ConsentType, &c.Granted, &c.ConsentText, &ip, &c.UserAgent, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		if ip.Valid {
			c.IPAddress = &ip.String
		}
		consents = append(consents, c)
	}
	return consents, rows.Err()
}

// EraseUser anonymizes the user's security events and audit rows and then
// deletes the user. Tokens, backup codes, consents and the profile cascade
// with the user row. It returns how many log rows were anonymized.
func (r *GDPRRepository) EraseUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	var anonymized int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('collabhub.anonymize', 'on', true)`); err != nil {
			return fmt.Errorf("failed to enable anonymization: %w", err)
		}

		events := `
			UPDATE security_events
			SET user_id = $1, details = details || jsonb_build_object('anonymized', true, 'anonymized_at', $2::timestamptz)
			WHERE user_id = $3
		`
		result, err := tx.ExecContext(ctx, events, model.AnonymizedUserID, now, userID)
		if err != nil {
			return fmt.Errorf("failed to anonymize security events: %w", err)
		}
		n, _ := result.RowsAffected()
		anonymized += n

		audits := `UPDATE audit_logs SET user_id = $1 WHERE user_id = $2`
		result, err = tx.ExecContext(ctx, audits, model.AnonymizedUserID, userID)
		if err != nil {
			return fmt.Errorf("failed to anonymize audit logs: %w", err)
		}
		n, _ = result.RowsAffected()
		anonymized += n

		result, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return anonymized, nil
}
