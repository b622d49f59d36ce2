package model

import (
	"time"
)

// TokenPurpose distinguishes the emailed single-use tokens
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// AccountToken is an emailed single-use token. Only the SHA-256 hash of the
// token string is stored. Rows are never deleted.
type AccountToken struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Purpose   TokenPurpose `json:"purpose"`
	TokenHash string       `json:"-"`
	IPAddress *string      `json:"ip_address,omitempty"`
	ExpiresAt time.Time    `json:"expires_at"`
	UsedAt    *time.Time   `json:"used_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// IsExpired checks if the token has expired at now
func (t *AccountToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsUsed checks if the token has been redeemed or invalidated
func (t *AccountToken) IsUsed() bool {
	return t.UsedAt != nil
}

// RefreshToken represents a stored refresh credential
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsExpired checks if the refresh token has expired
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsRevoked checks if the refresh token has been blacklisted
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// TokenStats summarises account tokens of one purpose
type TokenStats struct {
	Purpose       TokenPurpose `json:"purpose"`
	Issued        int64        `json:"issued"`
	Used          int64        `json:"used"`
	ExpiredUnused int64        `json:"expired_unused"`
}
