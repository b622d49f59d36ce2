package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/cache"
	"github.com/collabhub/collabhub/internal/captcha"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/repository"
)

// CAPTCHA actions checked by the score-based provider
const (
	CaptchaActionRegister      = "register"
	CaptchaActionLogin         = "login"
	CaptchaActionPasswordReset = "password_reset"
)

const (
	resetRequestWindow  = time.Hour
	defaultResetPerHour = 3
)

// AuthService composes the token issuer, MFA, guard, CAPTCHA gate and the
// security log into the account flows.
type AuthService struct {
	users     UserStore
	refresh   RefreshTokenStore
	tokens    *TokenIssuer
	mfa       *MFAService
	guard     *Guard
	captcha   captcha.Verifier
	security  *SecurityLog
	audit     *AuditTrail
	notifier  Notifier
	tokenSvc  *auth.TokenService
	hasher    *auth.PasswordHasher
	revoked   cache.Store
	metrics   *metrics.Metrics
	cfg       *config.Config
	log       *logger.Logger
	now       func() time.Time
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserStore,
	refresh RefreshTokenStore,
	tokens *TokenIssuer,
	mfa *MFAService,
	guard *Guard,
	verifier captcha.Verifier,
	security *SecurityLog,
	audit *AuditTrail,
	notifier Notifier,
	tokenSvc *auth.TokenService,
	hasher *auth.PasswordHasher,
	revoked cache.Store,
	m *metrics.Metrics,
	cfg *config.Config,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		refresh:  refresh,
		tokens:   tokens,
		mfa:      mfa,
		guard:    guard,
		captcha:  verifier,
		security: security,
		audit:    audit,
		notifier: notifier,
		tokenSvc: tokenSvc,
		hasher:   hasher,
		revoked:  revoked,
		metrics:  m,
		cfg:      cfg,
		log:      log.WithComponent("auth_service"),
		now:      time.Now,
	}
}

// AuthResult is returned by flows that sign the user in
type AuthResult struct {
	User                 *model.User
	Tokens               *auth.TokenPair
	VerificationRequired bool
	UsedBackupCode       bool
	BackupCodesRemaining int
}

// RegisterRequest contains the data for registering a new user
type RegisterRequest struct {
	Username     string
	Email        string
	Password     string
	Password2    string
	FirstName    string
	LastName     string
	Role         string
	CaptchaToken string
}

// Register creates a new account, sends the verification email and signs
// the user in. Unverified users cannot log in again until they verify.
func (s *AuthService) Register(ctx context.Context, actor Actor, req RegisterRequest) (*AuthResult, error) {
	if err := s.checkCaptcha(ctx, actor, req.CaptchaToken, CaptchaActionRegister); err != nil {
		return nil, err
	}

	email, err := auth.NormalizeEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidEmail
	}
	username := strings.TrimSpace(req.Username)
	if err := auth.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUsername, err.Error())
	}

	role := model.RoleStudent
	if req.Role != "" {
		role = model.Role(strings.ToLower(req.Role))
		if !role.Valid() {
			return nil, ErrInvalidRole
		}
	}

	if req.Password != req.Password2 {
		return nil, ErrPasswordMismatch
	}
	if err := auth.ValidatePassword(req.Password, s.cfg.Security.Password.MinLength); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPasswordTooWeak, err.Error())
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}
	exists, err = s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           generateID("usr"),
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
		PasswordHash: passwordHash,
		IsVerified:   s.cfg.Dev.AutoVerifyEmail,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.CreateWithProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.audit.RecordChange(ctx, actor, Change{
		EntityType: EntityUser,
		EntityID:   user.ID,
		EntityRepr: user.Username,
		Action:     model.AuditActionCreate,
		After:      user.AuditFields(),
	})

	if user.IsVerified {
		s.log.Warn().Str("user_id", user.ID).Msg("email auto-verified by dev.auto_verify_email")
	} else {
		s.sendVerification(ctx, actor, user)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")

	return &AuthResult{
		User:                 user,
		Tokens:               tokens,
		VerificationRequired: !user.IsVerified,
	}, nil
}

// LoginRequest contains the data for logging in
type LoginRequest struct {
	Email        string
	Password     string
	MFACode      string
	CaptchaToken string
}

// Login authenticates a user. The guard is consulted before the password is
// hashed, and tokens are only issued once every check has passed.
func (s *AuthService) Login(ctx context.Context, actor Actor, req LoginRequest) (*AuthResult, error) {
	if err := s.checkCaptcha(ctx, actor, req.CaptchaToken, CaptchaActionLogin); err != nil {
		s.metrics.Login("captcha_failed")
		return nil, err
	}

	identifier := strings.TrimSpace(req.Email)
	if _, err := s.guard.Check(ctx, identifier, actor.IP); err != nil {
		s.metrics.Login("locked")
		s.security.Record(ctx, actor, Event{
			Type:    model.EventLoginFailed,
			Details: map[string]interface{}{"username": normalizeUsername(identifier), "reason": "locked_out"},
		})
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, identifier)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		s.burnPasswordCheck(req.Password)
		s.loginFailed(ctx, actor, identifier, "", "unknown_user")
		return nil, ErrInvalidCredentials
	}

	match, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		s.loginFailed(ctx, actor, identifier, user.ID, "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.loginFailed(ctx, actor, identifier, user.ID, "account_disabled")
		return nil, ErrAccountDisabled
	}
	if !user.IsVerified {
		s.metrics.Login("unverified")
		s.security.Record(ctx, actor, Event{
			Type:    model.EventLoginFailed,
			UserID:  user.ID,
			Details: map[string]interface{}{"reason": "email_not_verified"},
		})
		return nil, ErrEmailNotVerified
	}

	verification, err := s.mfa.VerifyLogin(ctx, actor, user, req.MFACode)
	if err != nil {
		if errors.Is(err, ErrMFARequired) {
			s.metrics.Login("mfa_required")
			return nil, err
		}
		if errors.Is(err, ErrInvalidMFACode) {
			s.metrics.Login("mfa_failed")
			s.guard.RecordFailure(ctx, actor, identifier, user.ID)
		}
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to update last login")
	}
	user.LastLoginAt = &now
	s.rehashIfNeeded(ctx, user, req.Password)

	s.security.Record(ctx, actor, Event{
		Type:    model.EventLoginSuccess,
		UserID:  user.ID,
		Details: map[string]interface{}{"used_backup_code": verification.UsedBackupCode},
	})
	s.guard.Reset(ctx, identifier, actor.IP)
	s.metrics.Login("success")

	return &AuthResult{
		User:                 user,
		Tokens:               tokens,
		UsedBackupCode:       verification.UsedBackupCode,
		BackupCodesRemaining: verification.BackupCodesRemaining,
	}, nil
}

// Logout blacklists a refresh token and, when given, the access token the
// request was made with. Unknown refresh tokens return ErrTokenInvalid and
// already revoked ones succeed.
func (s *AuthService) Logout(ctx context.Context, actor Actor, refreshToken string, access *auth.TokenClaims) error {
	s.revokeAccess(ctx, access)

	stored, err := s.lookupRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	if actor.UserID != "" && !ownedBy(stored, actor.UserID) {
		return ErrForbidden
	}

	if err := s.refresh.Revoke(ctx, stored.ID); err != nil && !errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	s.security.Record(ctx, actor, Event{Type: model.EventTokenBlacklist, UserID: stored.UserID})
	s.security.Record(ctx, actor, Event{Type: model.EventLogout, UserID: stored.UserID})
	return nil
}

// Refresh rotates a refresh token into a new pair. Presenting an already
// rotated token revokes every token of its owner.
func (s *AuthService) Refresh(ctx context.Context, actor Actor, refreshToken string) (*auth.TokenPair, error) {
	stored, err := s.lookupRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if stored.IsRevoked() {
		s.revokeAfterReuse(ctx, actor, stored)
		return nil, ErrTokenAlreadyUsed
	}
	if stored.IsExpired() {
		return nil, ErrTokenExpired
	}

	if err := s.refresh.Revoke(ctx, stored.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.revokeAfterReuse(ctx, actor, stored)
			return nil, ErrTokenAlreadyUsed
		}
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.security.Record(ctx, actor, Event{Type: model.EventTokenRefresh, UserID: user.ID})
	return tokens, nil
}

// VerifyEmail redeems a verification token
func (s *AuthService) VerifyEmail(ctx context.Context, actor Actor, token string) error {
	userID, err := s.tokens.RedeemVerification(ctx, token)
	if err != nil {
		return err
	}

	s.audit.RecordChange(ctx, actor, Change{
		EntityType: EntityUser,
		EntityID:   userID,
		Action:     model.AuditActionUpdate,
		Before:     map[string]string{"is_verified": "false"},
		After:      map[string]string{"is_verified": "true"},
	})
	s.log.Info().Str("user_id", userID).Msg("email verified")
	return nil
}

// ResendVerification sends a fresh verification email when the address
// belongs to an unverified active account. The outcome is never reported to
// the caller.
func (s *AuthService) ResendVerification(ctx context.Context, actor Actor, emailAddr string) {
	user, ok := s.findForEmailFlow(ctx, emailAddr)
	if !ok || user.IsVerified {
		return
	}
	s.sendVerification(ctx, actor, user)
}

// PasswordResetRequest contains the data for requesting a reset email
type PasswordResetRequest struct {
	Email        string
	CaptchaToken string
}

// RequestPasswordReset emails a reset link when the address belongs to an
// active account. Only a CAPTCHA failure is reported to the caller.
func (s *AuthService) RequestPasswordReset(ctx context.Context, actor Actor, req PasswordResetRequest) error {
	if err := s.checkCaptcha(ctx, actor, req.CaptchaToken, CaptchaActionPasswordReset); err != nil {
		return err
	}

	user, ok := s.findForEmailFlow(ctx, req.Email)
	if !ok {
		return nil
	}

	limit := s.cfg.AccountTokens.ResetRequestsPerHour
	if limit <= 0 {
		limit = defaultResetPerHour
	}
	recent, err := s.tokens.IssuedWithin(ctx, user.ID, model.PurposePasswordReset, resetRequestWindow)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to count reset requests")
		return nil
	}
	if recent >= limit {
		s.security.Record(ctx, actor, Event{
			Type:     model.EventSuspiciousActivity,
			Severity: model.SeverityWarning,
			UserID:   user.ID,
			Details:  map[string]interface{}{"reason": "password_reset_rate_limited", "recent_requests": recent},
		})
		return nil
	}

	token, err := s.tokens.Issue(ctx, user.ID, model.PurposePasswordReset, actor.IP)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to issue reset token")
		return nil
	}
	s.notifier.SendPasswordReset(user, token, derefString(actor.ipAddress()), s.tokens.TTL(model.PurposePasswordReset))
	s.security.Record(ctx, actor, Event{Type: model.EventPasswordResetRequest, UserID: user.ID})
	return nil
}

// ValidateResetToken checks a reset token without consuming it
func (s *AuthService) ValidateResetToken(ctx context.Context, token string) error {
	_, err := s.tokens.ValidateReset(ctx, token)
	return err
}

// ConfirmPasswordReset sets a new password through a reset token. Every
// outstanding reset token and refresh token of the user is invalidated.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, actor Actor, token, password string) error {
	if _, err := s.tokens.ValidateReset(ctx, token); err != nil {
		return err
	}
	if err := auth.ValidatePassword(password, s.cfg.Security.Password.MinLength); err != nil {
		return fmt.Errorf("%w: %s", ErrPasswordTooWeak, err.Error())
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	consumed, err := s.tokens.ConsumeReset(ctx, token, passwordHash)
	if err != nil {
		return err
	}

	s.revokeAccessBefore(ctx, consumed.UserID)

	s.security.Record(ctx, actor, Event{Type: model.EventPasswordResetComplete, UserID: consumed.UserID})
	s.auditPasswordChange(ctx, actor, consumed.UserID, "")
	s.log.Info().Str("user_id", consumed.UserID).Msg("password reset completed")
	return nil
}

// ChangePassword replaces the actor's password and signs out every session
func (s *AuthService) ChangePassword(ctx context.Context, actor Actor, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	match, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}
	if err := auth.ValidatePassword(newPassword, s.cfg.Security.Password.MinLength); err != nil {
		return fmt.Errorf("%w: %s", ErrPasswordTooWeak, err.Error())
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.refresh.RevokeAllForUser(ctx, user.ID); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to revoke refresh tokens")
	}
	s.revokeAccessBefore(ctx, user.ID)

	s.security.Record(ctx, actor, Event{Type: model.EventPasswordChange, UserID: user.ID})
	s.auditPasswordChange(ctx, actor, user.ID, user.Username)
	return nil
}

// ChangeRole sets another user's role on behalf of an administrator
func (s *AuthService) ChangeRole(ctx context.Context, actor Actor, userID, role string) (*model.User, error) {
	newRole := model.Role(strings.ToLower(strings.TrimSpace(role)))
	if !newRole.Valid() {
		return nil, ErrInvalidRole
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	oldRole := user.Role
	if oldRole == newRole {
		return user, nil
	}

	if err := s.users.UpdateRole(ctx, user.ID, newRole); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	before := user.AuditFields()
	user.Role = newRole

	s.security.Record(ctx, actor, Event{
		Type:    model.EventRoleChange,
		UserID:  user.ID,
		Details: map[string]interface{}{"old_role": oldRole, "new_role": newRole, "changed_by": actor.UserID},
	})
	s.security.Record(ctx, actor, Event{
		Type:    model.EventAdminAction,
		Details: map[string]interface{}{"action": "change_role", "target_user": user.ID},
	})
	s.audit.RecordChange(ctx, actor, Change{
		EntityType: EntityUser,
		EntityID:   user.ID,
		EntityRepr: user.Username,
		Action:     model.AuditActionUpdate,
		Before:     before,
		After:      user.AuditFields(),
	})
	return user, nil
}

// CurrentUser returns the user behind an access token
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AuthService) checkCaptcha(ctx context.Context, actor Actor, token, action string) error {
	res := s.captcha.Verify(ctx, token, actor.IP, action)
	if res.Success {
		return nil
	}

	details := map[string]interface{}{"captcha_reason": string(res.Reason), "action": action}
	if res.Score != nil {
		details["score"] = *res.Score
	}
	if len(res.ErrorCodes) > 0 {
		details["error_codes"] = res.ErrorCodes
	}
	s.security.Record(ctx, actor, Event{
		Type:     model.EventSuspiciousActivity,
		Severity: model.SeverityWarning,
		Details:  details,
	})
	return &CaptchaError{Reason: res.Reason}
}

func (s *AuthService) loginFailed(ctx context.Context, actor Actor, identifier, userID, reason string) {
	s.metrics.Login("failed")
	s.security.Record(ctx, actor, Event{
		Type:    model.EventLoginFailed,
		UserID:  userID,
		Details: map[string]interface{}{"username": normalizeUsername(identifier), "reason": reason},
	})
	s.guard.RecordFailure(ctx, actor, identifier, userID)
}

// burnPasswordCheck runs a hash comparison for unknown users so response
// times do not reveal whether an account exists.
func (s *AuthService) burnPasswordCheck(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("collabhub-timing-equalizer")
		if err == nil {
			s.dummyHash = hash
		}
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

func (s *AuthService) rehashIfNeeded(ctx context.Context, user *model.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to upgrade password hash")
		return
	}
	user.PasswordHash = hash
}

func (s *AuthService) issueTokens(ctx context.Context, user *model.User) (*auth.TokenPair, error) {
	pair, refreshHash, err := s.tokenSvc.GenerateTokenPair(auth.Subject{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    string(user.Role),
		IsStaff: user.IsStaff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	now := s.now()
	stored := &model.RefreshToken{
		ID:        generateID("rt"),
		UserID:    user.ID,
		TokenHash: refreshHash,
		ExpiresAt: now.Add(s.tokenSvc.RefreshTokenTTL()),
		CreatedAt: now,
	}
	if err := s.refresh.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return pair, nil
}

func (s *AuthService) lookupRefresh(ctx context.Context, raw string) (*model.RefreshToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}

	stored, err := s.refresh.GetByHash(ctx, auth.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return stored, nil
}

// revokeAccess blacklists an access token until it would have expired
func (s *AuthService) revokeAccess(ctx context.Context, claims *auth.TokenClaims) {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.revoked.SetFlag(ctx, auth.RevokedAccessKey(claims.ID), ttl); err != nil {
		s.log.Warn().Err(err).Msg("failed to blacklist access token")
	}
}

// revokeAccessBefore voids every access token userID holds now. The marker
// lives as long as the longest access token it can affect.
func (s *AuthService) revokeAccessBefore(ctx context.Context, userID string) {
	err := s.revoked.SetTime(ctx, auth.RevokedBeforeKey(userID), s.now(), s.cfg.Security.Tokens.AccessTokenTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to revoke access tokens")
	}
}

func (s *AuthService) revokeAfterReuse(ctx context.Context, actor Actor, token *model.RefreshToken) {
	if err := s.refresh.RevokeAllForUser(ctx, token.UserID); err != nil {
		s.log.Error().Err(err).Str("user_id", token.UserID).Msg("failed to revoke refresh tokens")
	}
	s.revokeAccessBefore(ctx, token.UserID)
	s.security.Record(ctx, actor, Event{
		Type:    model.EventSuspiciousActivity,
		UserID:  token.UserID,
		Details: map[string]interface{}{"reason": "refresh_token_reuse"},
	})
}

func (s *AuthService) sendVerification(ctx context.Context, actor Actor, user *model.User) {
	token, err := s.tokens.Issue(ctx, user.ID, model.PurposeEmailVerification, actor.IP)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to issue verification token")
		return
	}
	s.notifier.SendVerification(user, token, s.tokens.TTL(model.PurposeEmailVerification))
}

// findForEmailFlow looks up an active account by email. Lookup errors are
// logged and treated as "no account".
func (s *AuthService) findForEmailFlow(ctx context.Context, emailAddr string) (*model.User, bool) {
	normalized, err := auth.NormalizeEmail(emailAddr)
	if err != nil {
		return nil, false
	}
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Error().Err(err).Msg("failed to look up user")
		}
		return nil, false
	}
	if !user.IsActive {
		return nil, false
	}
	return user, true
}

func (s *AuthService) auditPasswordChange(ctx context.Context, actor Actor, userID, repr string) {
	s.audit.RecordChange(ctx, actor, Change{
		EntityType: EntityUser,
		EntityID:   userID,
		EntityRepr: repr,
		Action:     model.AuditActionUpdate,
		Before:     map[string]string{"password_hash": "old"},
		After:      map[string]string{"password_hash": "new"},
	})
}

func ownedBy(o model.Ownable, userID string) bool {
	return o.OwnerID() == userID
}
