package model

import "time"

// AuditAction is the kind of mutation recorded in the audit trail
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

// RedactedValue replaces the value of any sensitive field in a change set
const RedactedValue = "[CHANGED]"

// AuditLog represents a model-change trail entry. UserID is the actor and is
// a weak reference.
type AuditLog struct {
	ID         string                 `json:"id"`
	UserID     *string                `json:"user_id,omitempty"`
	Action     AuditAction            `json:"action"`
	EntityType string                 `json:"model_name"`
	EntityID   string                 `json:"object_id"`
	EntityRepr string                 `json:"object_repr,omitempty"`
	Changes    map[string]interface{} `json:"changes,omitempty"`
	IPAddress  *string                `json:"ip_address,omitempty"`
	CreatedAt  time.Time              `json:"timestamp"`
}

// FieldChange is the old and new value of one changed field
type FieldChange struct {
	Old *string `json:"old"`
	New *string `json:"new"`
}

// AuditLogFilter narrows audit listings
type AuditLogFilter struct {
	EntityType string
	UserID     string
	Limit      int
}
