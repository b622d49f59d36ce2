// Package service holds the account-security business logic: token issuance,
// MFA, the brute-force guard, the security log and audit trail, GDPR
// requests and the auth flows composing them.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collabhub/collabhub/internal/captcha"
	"github.com/collabhub/collabhub/internal/model"
)

// Common service errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("too many failed login attempts, try again later")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailNotVerified   = errors.New("email address is not verified")
	ErrEmailAlreadyExists = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrPasswordTooWeak    = errors.New("password does not meet requirements")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenAlreadyUsed   = errors.New("token has already been used")
	ErrMFARequired        = errors.New("MFA verification required")
	ErrInvalidMFACode     = errors.New("invalid MFA code")
	ErrMFAAlreadyEnabled  = errors.New("MFA is already enabled")
	ErrMFANotEnabled      = errors.New("MFA is not enabled")
	ErrMFASetupNotStarted = errors.New("MFA setup has not been started")
	ErrCaptchaFailed      = errors.New("CAPTCHA verification failed")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidConsentType = errors.New("invalid consent type")
)

// CaptchaError is returned when the CAPTCHA gate rejects a request
type CaptchaError struct {
	Reason captcha.Reason
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCaptchaFailed.Error(), e.Reason)
}

// Is lets errors.Is match ErrCaptchaFailed
func (e *CaptchaError) Is(target error) bool {
	return target == ErrCaptchaFailed
}

// IsTokenError reports whether err is one of the single-use token errors.
// Callers present all of them with the same message.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenAlreadyUsed)
}

// Actor identifies who is performing an operation and from where. It is
// passed explicitly into every audited operation.
type Actor struct {
	UserID    string
	IP        string
	UserAgent string
}

// ipAddress returns the actor IP in a form safe for an INET column
func (a Actor) ipAddress() *string {
	return cleanIP(a.IP)
}

func (a Actor) userRef() *string {
	if a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}

// UserStore is the user persistence the services need
type UserStore interface {
	CreateWithProfile(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	UpdateRole(ctx context.Context, id string, role model.Role) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// AccountTokenStore persists verification and reset tokens
type AccountTokenStore interface {
	Issue(ctx context.Context, token *model.AccountToken) error
	GetByHash(ctx context.Context, tokenHash string, purpose model.TokenPurpose) (*model.AccountToken, error)
	RedeemVerification(ctx context.Context, tokenHash string, now time.Time) (*model.AccountToken, error)
	ConsumeReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*model.AccountToken, error)
	CountIssuedSince(ctx context.Context, userID string, purpose model.TokenPurpose, since time.Time) (int, error)
	Stats(ctx context.Context, now time.Time) ([]model.TokenStats, error)
}

// RefreshTokenStore persists refresh tokens
type RefreshTokenStore interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// MFAStore persists MFA state and backup codes
type MFAStore interface {
	SetPendingSecret(ctx context.Context, userID, sealedSecret string) error
	Enable(ctx context.Context, userID, sealedSecret string, codes []*model.BackupCode) error
	Disable(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, codes []*model.BackupCode) error
	GetUnusedBackupCodes(ctx context.Context, userID string) ([]*model.BackupCode, error)
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
	ConsumeBackupCode(ctx context.Context, id string) error
}

// SecurityEventStore appends and lists security events
type SecurityEventStore interface {
	Create(ctx context.Context, event *model.SecurityEvent) error
	List(ctx context.Context, filter model.SecurityEventFilter) ([]model.SecurityEvent, error)
}

// AuditStore appends and lists audit rows
type AuditStore interface {
	Create(ctx context.Context, log *model.AuditLog) error
	List(ctx context.Context, filter model.AuditLogFilter) ([]model.AuditLog, error)
}

// GDPRStore records deletion requests and consents, and erases users
type GDPRStore interface {
	CreateDeletionRequest(ctx context.Context, req *model.DataDeletionRequest) error
	FinishDeletionRequest(ctx context.Context, req *model.DataDeletionRequest) error
	EraseUser(ctx context.Context, userID string, now time.Time) (int64, error)
	UpsertConsent(ctx context.Context, consent *model.ConsentRecord) error
	ListConsents(ctx context.Context, userID string) ([]model.ConsentRecord, error)
}

// Helper functions

func generateID(prefix string) string {
	clean := strings.ReplaceAll(uuid.New().String(), "-", "")
	if prefix != "" {
		return prefix + "_" + clean
	}
	return clean
}

// cleanIP strips any port and returns nil unless ip parses as an address
func cleanIP(ip string) *string {
	ip = strings.TrimSpace(ip)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil
	}
	s := parsed.String()
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// detach keeps request values but drops cancellation, so best-effort writes
// started at the end of a request still complete.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

var errQueueFull = errors.New("mail queue full")
