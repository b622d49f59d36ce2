package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/collabhub/collabhub/internal/database"
	"github.com/collabhub/collabhub/internal/model"
)

// AuditRepository handles audit log persistence
type AuditRepository struct {
	db *database.Postgres
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	changes, err := json.Marshal(log.Changes)
	if err != nil || log.Changes == nil {
		changes = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (id, user_id, action, model_name, object_id, object_repr,
		    changes, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		truncate(log.EntityRepr, 255),
		changes,
		log.IPAddress,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// List returns the newest audit rows matching the filter
func (r *AuditRepository) List(ctx context.Context, filter model.AuditLogFilter) ([]model.AuditLog, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conds = append(conds, fmt.Sprintf("model_name = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT id, user_id, action, model_name, object_id, object_repr, changes, host(ip_address), created_at FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []model.AuditLog{}
	for rows.Next() {
		var (
			l       model.AuditLog
			ip      sql.NullString
			changes []byte
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.EntityType, &l.EntityID, &l.EntityRepr, &changes, &ip, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if ip.Valid {
			l.IPAddress = &ip.String
		}
		if len(changes) > 0 {
			_ = json.Unmarshal(changes, &l.Changes)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
