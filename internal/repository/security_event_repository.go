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

const defaultListLimit = 100

// SecurityEventRepository appends and lists security events. Rows are never
// updated except by anonymization.
type SecurityEventRepository struct {
	db *database.Postgres
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.Postgres) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

// Create appends a security event
func (r *SecurityEventRepository) Create(ctx context.Context, event *model.SecurityEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil || event.Details == nil {
		details = []byte("{}")
	}

	query := `
		INSERT INTO security_events (id, user_id, event_type, severity, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.EventType,
		event.Severity,
		event.IPAddress,
		event.UserAgent,
		details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", err)
	}
	return nil
}

// List returns the newest events matching the filter
func (r *SecurityEventRepository) List(ctx context.Context, filter model.SecurityEventFilter) ([]model.SecurityEvent, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conds = append(conds, fmt.Sprintf("event_type = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT id, user_id, event_type, severity, host(ip_address), user_agent, details, created_at FROM security_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	events := []model.SecurityEvent{}
	for rows.Next() {
		var (
			e       model.SecurityEvent
			ip      sql.NullString
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Severity, &ip, &e.UserAgent, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		if ip.Valid {
			e.IPAddress = &ip.String
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
