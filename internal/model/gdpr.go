package model

import "time"

// DeletionStatus tracks a right-to-erasure request
type DeletionStatus string

const (
	DeletionPending    DeletionStatus = "pending"
	DeletionProcessing DeletionStatus = "processing"
	DeletionCompleted  DeletionStatus = "completed"
	DeletionCancelled  DeletionStatus = "cancelled"
)

// DataDeletionRequest records an account deletion. UserEmail survives the
// user row so the request stays attributable.
type DataDeletionRequest struct {
	ID          string                 `json:"id"`
	UserID      *string                `json:"user_id,omitempty"`
	UserEmail   string                 `json:"user_email"`
	Status      DeletionStatus         `json:"status"`
	Reason      string                 `json:"reason,omitempty"`
	IPAddress   *string                `json:"ip_address,omitempty"`
	DeletionLog map[string]interface{} `json:"deletion_log,omitempty"`
	RequestedAt time.Time              `json:"requested_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// ConsentType names a data processing activity a user can agree to
type ConsentType string

const (
	ConsentTermsOfService    ConsentType = "tos"
	ConsentPrivacyPolicy     ConsentType = "privacy"
	ConsentMarketingEmail    ConsentType = "marketing"
	ConsentDataAnalytics     ConsentType = "analytics"
	ConsentThirdPartySharing ConsentType = "third_party"
	ConsentCookies           ConsentType = "cookies"
)

// ConsentTypes lists every accepted consent type
var ConsentTypes = []ConsentType{
	ConsentTermsOfService,
	ConsentPrivacyPolicy,
	ConsentMarketingEmail,
	ConsentDataAnalytics,
	ConsentThirdPartySharing,
	ConsentCookies,
}

// Valid reports whether t is a known consent type
func (t ConsentType) Valid() bool {
	for _, known := range ConsentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ConsentRecord is the latest decision of a user for one consent type.
// There is at most one row per (user, type); a new decision replaces it.
type ConsentRecord struct {
	ID          string      `json:"id"`
	UserID      string      `json:"-"`
	ConsentType ConsentType `json:"consent_type"`
	Granted     bool        `json:"granted"`
	ConsentText string      `json:"consent_text,omitempty"`
	IPAddress   *string     `json:"ip_address,omitempty"`
	UserAgent   string      `json:"user_agent,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// DataExport is the right-of-access bundle returned to a user
type DataExport struct {
	ExportDate     time.Time       `json:"export_date"`
	User           *User           `json:"user"`
	SecurityEvents []SecurityEvent `json:"security_events"`
	AuditLogs      []AuditLog      `json:"audit_logs"`
	Consents       []ConsentRecord `json:"consents"`
}
