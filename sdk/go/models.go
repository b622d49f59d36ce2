package collabhub

import "time"

// User is an account as returned by the auth API.
type User struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Role       string     `json:"role"`
	IsVerified bool       `json:"is_verified"`
	IsActive   bool       `json:"is_active"`
	IsStaff    bool       `json:"is_staff"`
	MFAEnabled bool       `json:"mfa_enabled"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	DateJoined time.Time  `json:"date_joined"`
}

// TokenPair is an access and refresh token pair.
type TokenPair struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// RegisterRequest contains the data for creating a new account.
type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Password2    string `json:"password2"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Role         string `json:"role,omitempty"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

// RegisterResponse is returned after successful registration.
type RegisterResponse struct {
	User                 *User      `json:"user"`
	Tokens               *TokenPair `json:"tokens"`
	VerificationRequired bool       `json:"verification_required"`
}

// LoginRequest contains the credentials for authentication.
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	MFACode      string `json:"mfa_code,omitempty"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

// LoginResponse is returned on successful authentication.
type LoginResponse struct {
	TokenPair
	User                 *User `json:"user"`
	UsedBackupCode       bool  `json:"used_backup_code"`
	BackupCodesRemaining *int  `json:"backup_codes_remaining,omitempty"`
}
