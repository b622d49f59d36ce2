package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/repository"
)

const (
	defaultBackupCodeCount = 10
	backupCodeBytes        = 4 // rendered as XXXX-XXXX
	qrCodeSize             = 256
)

// MFAService drives the TOTP lifecycle: Disabled, PendingSetup, Enabled.
type MFAService struct {
	store    MFAStore
	users    UserStore
	box      *auth.SecretBox
	hasher   *auth.PasswordHasher
	security *SecurityLog
	audit    *AuditTrail
	cfg      config.MFAConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewMFAService creates a new MFAService
func NewMFAService(
	store MFAStore,
	users UserStore,
	box *auth.SecretBox,
	hasher *auth.PasswordHasher,
	security *SecurityLog,
	audit *AuditTrail,
	cfg config.MFAConfig,
	log *logger.Logger,
) *MFAService {
	if cfg.TOTP.Issuer == "" {
		cfg.TOTP.Issuer = "CollabHub"
	}
	if cfg.TOTP.Digits == 0 {
		cfg.TOTP.Digits = 6
	}
	if cfg.TOTP.Period == 0 {
		cfg.TOTP.Period = 30
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = defaultBackupCodeCount
	}
	return &MFAService{
		store:    store,
		users:    users,
		box:      box,
		hasher:   hasher,
		security: security,
		audit:    audit,
		cfg:      cfg,
		log:      log.WithComponent("mfa_service"),
		now:      time.Now,
	}
}

// StartSetup generates a new pending secret for the actor. Calling it again
// before confirming replaces the pending secret.
func (s *MFAService) StartSetup(ctx context.Context, actor Actor) (*model.MFASetupResponse, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.TOTP.Issuer,
		AccountName: user.Email,
		Period:      uint(s.cfg.TOTP.Period),
		Digits:      otp.Digits(s.cfg.TOTP.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	sealed, err := s.box.Seal(key.Secret(), user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetPendingSecret(ctx, user.ID, sealed); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrMFAAlreadyEnabled
		}
		return nil, fmt.Errorf("failed to store pending secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("TOTP setup initiated")

	return &model.MFASetupResponse{
		Secret:  key.Secret(),
		QRCode:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		URI:     key.URL(),
		Message: "Scan the QR code with your authenticator app, then verify with a code to enable MFA.",
	}, nil
}

// ConfirmSetup verifies a code against the pending secret, enables MFA and
// returns the initial backup codes. The codes are only ever shown here.
func (s *MFAService) ConfirmSetup(ctx context.Context, actor Actor, code string) (*model.BackupCodesResponse, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	switch user.MFAState() {
	case model.MFAStateEnabled:
		return nil, ErrMFAAlreadyEnabled
	case model.MFAStateDisabled:
		return nil, ErrMFASetupNotStarted
	}

	ok, err := s.checkTOTP(user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.recordFailure(ctx, actor, user.ID, "setup")
		return nil, ErrInvalidMFACode
	}

	plain, codes, err := s.newBackupCodes(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Enable(ctx, user.ID, user.MFASecret, codes); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Enabled or restarted by a concurrent request.
			return nil, ErrMFASetupNotStarted
		}
		return nil, fmt.Errorf("failed to enable MFA: %w", err)
	}

	s.security.Record(ctx, actor, Event{Type: model.EventMFAEnabled, UserID: user.ID})
	s.auditMFAChange(ctx, actor, user, false, true)
	s.log.Info().Str("user_id", user.ID).Msg("MFA enabled")

	return &model.BackupCodesResponse{
		Message:     "MFA enabled successfully.",
		BackupCodes: plain,
		Warning:     "Save these backup codes in a safe place. They will not be shown again.",
	}, nil
}

// VerifyLogin checks a second factor for user. A TOTP code is tried first,
// then a backup code, which is consumed on success. Users without MFA pass.
func (s *MFAService) VerifyLogin(ctx context.Context, actor Actor, user *model.User, code string) (*model.MFAVerification, error) {
	if !user.MFAEnabled {
		return &model.MFAVerification{}, nil
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrMFARequired
	}

	ok, err := s.checkTOTP(user, code)
	if err != nil {
		return nil, err
	}
	if ok {
		return &model.MFAVerification{}, nil
	}

	used, err := s.consumeBackupCode(ctx, user.ID, code)
	if err != nil {
		return nil, err
	}
	if !used {
		s.recordFailure(ctx, actor, user.ID, "login")
		return nil, ErrInvalidMFACode
	}

	remaining, err := s.store.CountUnusedBackupCodes(ctx, user.ID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to count backup codes")
	}
	s.log.Info().Str("user_id", user.ID).Int("remaining", remaining).Msg("backup code used")

	return &model.MFAVerification{UsedBackupCode: true, BackupCodesRemaining: remaining}, nil
}

// Disable turns MFA off. Both the password and a current TOTP code are
// required; backup codes are not accepted here.
func (s *MFAService) Disable(ctx context.Context, actor Actor, password, code string) error {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}

	match, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		s.recordFailure(ctx, actor, user.ID, "disable_password")
		return ErrInvalidCredentials
	}

	ok, err := s.checkTOTP(user, code)
	if err != nil {
		return err
	}
	if !ok {
		s.recordFailure(ctx, actor, user.ID, "disable")
		return ErrInvalidMFACode
	}

	if err := s.store.Disable(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrMFANotEnabled
		}
		return fmt.Errorf("failed to disable MFA: %w", err)
	}

	s.security.Record(ctx, actor, Event{Type: model.EventMFADisabled, UserID: user.ID})
	s.auditMFAChange(ctx, actor, user, true, false)
	s.log.Info().Str("user_id", user.ID).Msg("MFA disabled")
	return nil
}

// RegenerateBackupCodes replaces the whole backup code set after checking a
// current TOTP code.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, actor Actor, code string) (*model.BackupCodesResponse, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	ok, err := s.checkTOTP(user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.recordFailure(ctx, actor, user.ID, "regenerate_backup_codes")
		return nil, ErrInvalidMFACode
	}

	plain, codes, err := s.newBackupCodes(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceBackupCodes(ctx, user.ID, codes); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrMFANotEnabled
		}
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Int("count", len(plain)).Msg("backup codes regenerated")

	return &model.BackupCodesResponse{
		Message:     "Backup codes regenerated.",
		BackupCodes: plain,
		Warning:     "Your previous backup codes no longer work. Save these in a safe place.",
	}, nil
}

// Status returns the user's MFA state and remaining backup codes
func (s *MFAService) Status(ctx context.Context, userID string) (*model.MFAStatusResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	resp := &model.MFAStatusResponse{
		MFAEnabled: user.MFAEnabled,
		State:      user.MFAState(),
	}
	if user.MFAEnabled {
		count, err := s.store.CountUnusedBackupCodes(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count backup codes: %w", err)
		}
		resp.BackupCodesRemaining = count
	}
	return resp, nil
}

// checkTOTP validates code against the user's stored secret, allowing the
// configured clock skew in steps either side of now.
func (s *MFAService) checkTOTP(user *model.User, code string) (bool, error) {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if len(code) != s.cfg.TOTP.Digits {
		return false, nil
	}

	secret, err := s.box.Open(user.MFASecret, user.ID)
	if err != nil {
		return false, fmt.Errorf("failed to open MFA secret: %w", err)
	}

	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    uint(s.cfg.TOTP.Period),
		Skew:      s.cfg.TOTP.Skew,
		Digits:    otp.Digits(s.cfg.TOTP.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Malformed input is a mismatch, not a server error.
		return false, nil
	}
	return ok, nil
}

// consumeBackupCode looks for an unused code matching input and marks it
// used. A concurrent consumer of the same code makes this return false.
func (s *MFAService) consumeBackupCode(ctx context.Context, userID, input string) (bool, error) {
	normalized := NormalizeBackupCode(input)
	if normalized == "" {
		return false, nil
	}
	inputHash := []byte(auth.HashToken(normalized))

	codes, err := s.store.GetUnusedBackupCodes(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get backup codes: %w", err)
	}

	for _, c := range codes {
		if subtle.ConstantTimeCompare([]byte(c.CodeHash), inputHash) != 1 {
			continue
		}
		if err := s.store.ConsumeBackupCode(ctx, c.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return false, nil
			}
			return false, fmt.Errorf("failed to consume backup code: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (s *MFAService) newBackupCodes(userID string) ([]string, []*model.BackupCode, error) {
	now := s.now()
	plain := make([]string, s.cfg.BackupCodeCount)
	codes := make([]*model.BackupCode, s.cfg.BackupCodeCount)

	for i := range plain {
		code, err := generateBackupCode()
		if err != nil {
			return nil, nil, err
		}
		plain[i] = code
		codes[i] = &model.BackupCode{
			ID:        generateID("bkp"),
			UserID:    userID,
			CodeHash:  auth.HashToken(NormalizeBackupCode(code)),
			CreatedAt: now,
		}
	}
	return plain, codes, nil
}

func (s *MFAService) recordFailure(ctx context.Context, actor Actor, userID, stage string) {
	s.security.Record(ctx, actor, Event{
		Type:    model.EventMFAFailed,
		UserID:  userID,
		Details: map[string]interface{}{"stage": stage},
	})
}

func (s *MFAService) auditMFAChange(ctx context.Context, actor Actor, user *model.User, before, after bool) {
	s.audit.RecordChange(ctx, actor, Change{
		EntityType: EntityUser,
		EntityID:   user.ID,
		EntityRepr: user.Username,
		Action:     model.AuditActionUpdate,
		Before:     map[string]string{"mfa_enabled": boolString(before)},
		After:      map[string]string{"mfa_enabled": boolString(after)},
	})
}

// NormalizeBackupCode uppercases a code and strips hyphens and spaces
func NormalizeBackupCode(code string) string {
	r := strings.NewReplacer("-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(code)))
}

func generateBackupCode() (string, error) {
	b := make([]byte, backupCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate backup code: %w", err)
	}
	code := strings.ToUpper(hex.EncodeToString(b))
	return code[:4] + "-" + code[4:], nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
