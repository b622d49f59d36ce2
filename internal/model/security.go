package model

import "time"

// SecurityEventType enumerates security-relevant actions
type SecurityEventType string

const (
	EventLoginSuccess          SecurityEventType = "login_success"
	EventLoginFailed           SecurityEventType = "login_failed"
	EventLogout                SecurityEventType = "logout"
	EventPasswordChange        SecurityEventType = "password_change"
	EventPasswordResetRequest  SecurityEventType = "password_reset_request"
	EventPasswordResetComplete SecurityEventType = "password_reset_complete"
	EventMFAEnabled            SecurityEventType = "mfa_enabled"
	EventMFADisabled           SecurityEventType = "mfa_disabled"
	EventMFAFailed             SecurityEventType = "mfa_failed"
	EventRoleChange            SecurityEventType = "role_change"
	EventAdminAction           SecurityEventType = "admin_action"
	EventTokenRefresh          SecurityEventType = "token_refresh"
	EventTokenBlacklist        SecurityEventType = "token_blacklist"
	EventAccountLocked         SecurityEventType = "account_locked"
	EventAccountUnlocked       SecurityEventType = "account_unlocked"
	EventSuspiciousActivity    SecurityEventType = "suspicious_activity"
	EventDataExport            SecurityEventType = "data_export"
	EventAccountDeletion       SecurityEventType = "account_deletion"
)

// Severity grades a security event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity returns the severity an event type is recorded with unless
// the caller overrides it.
func (t SecurityEventType) DefaultSeverity() Severity {
	switch t {
	case EventSuspiciousActivity:
		return SeverityCritical
	case EventLoginFailed, EventMFADisabled, EventMFAFailed, EventRoleChange,
		EventAdminAction, EventAccountLocked, EventAccountDeletion:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// AnonymizedUserID replaces user references in the security log and audit
// trail once the user has been erased.
const AnonymizedUserID = "anonymized"

// SecurityEvent is an append-only record of a security-relevant action.
// UserID is a weak reference and becomes nil when the user is anonymized.
type SecurityEvent struct {
	ID        string                 `json:"id"`
	UserID    *string                `json:"user_id,omitempty"`
	EventType SecurityEventType      `json:"event_type"`
	Severity  Severity               `json:"severity"`
	IPAddress *string                `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"timestamp"`
}

// SecurityEventFilter narrows event listings
type SecurityEventFilter struct {
	UserID    string
	EventType SecurityEventType
	Limit     int
}
