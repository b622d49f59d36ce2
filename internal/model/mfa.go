package model

import (
	"time"
)

// MFAState is a user's position in the MFA lifecycle
type MFAState string

const (
	MFAStateDisabled     MFAState = "disabled"
	MFAStatePendingSetup MFAState = "pending_setup"
	MFAStateEnabled      MFAState = "enabled"
)

// BackupCode represents a one-time-use backup code
type BackupCode struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CodeHash  string     `json:"-"` // hashed code, never expose
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsUsed checks if the backup code has already been used
func (b *BackupCode) IsUsed() bool {
	return b.UsedAt != nil
}

// MFASetupResponse is returned when TOTP enrollment starts
type MFASetupResponse struct {
	Secret  string `json:"secret"`
	QRCode  string `json:"qr_code"` // data:image/png;base64,...
	URI     string `json:"otpauth_uri"`
	Message string `json:"message"`
}

// BackupCodesResponse carries freshly issued plaintext codes. They are shown once.
type BackupCodesResponse struct {
	Message     string   `json:"message"`
	BackupCodes []string `json:"backup_codes"`
	Warning     string   `json:"warning"`
}

// MFAStatusResponse returns the user's MFA configuration
type MFAStatusResponse struct {
	MFAEnabled           bool     `json:"mfa_enabled"`
	State                MFAState `json:"state"`
	BackupCodesRemaining int      `json:"backup_codes_remaining"`
}

// MFAVerification is the outcome of a successful second-factor check
type MFAVerification struct {
	UsedBackupCode       bool `json:"used_backup_code"`
	BackupCodesRemaining int  `json:"backup_codes_remaining,omitempty"`
}
