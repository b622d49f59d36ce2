package model

import (
	"time"
)

// Role is the platform role chosen at registration
type Role string

const (
	RoleStudent  Role = "student"
	RoleFounder  Role = "founder"
	RoleTalent   Role = "talent"
	RoleInvestor Role = "investor"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFounder, RoleTalent, RoleInvestor:
		return true
	}
	return false
}

// User is the credential record for an account
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         Role       `json:"role"`
	PasswordHash string     `json:"-"` // never expose password hash
	IsVerified   bool       `json:"is_verified"`
	IsActive     bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	MFAEnabled   bool       `json:"mfa_enabled"`
	MFASecret    string     `json:"-"` // sealed TOTP secret, set while pending or enabled
	LastLoginAt  *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"date_joined"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// MFAState returns where the user is in the MFA lifecycle
func (u *User) MFAState() MFAState {
	switch {
	case u.MFAEnabled:
		return MFAStateEnabled
	case u.MFASecret != "":
		return MFAStatePendingSetup
	default:
		return MFAStateDisabled
	}
}

// AuditFields returns the fields tracked by the audit trail, keyed by column
// name. Values are rendered as strings so they can be diffed and stored as JSON.
func (u *User) AuditFields() map[string]string {
	fields := map[string]string{
		"username":      u.Username,
		"email":         u.Email,
		"first_name":    u.FirstName,
		"last_name":     u.LastName,
		"role":          string(u.Role),
		"password_hash": u.PasswordHash,
		"is_verified":   boolString(u.IsVerified),
		"is_active":     boolString(u.IsActive),
		"is_staff":      boolString(u.IsStaff),
		"mfa_enabled":   boolString(u.MFAEnabled),
	}
	return fields
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
