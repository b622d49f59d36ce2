package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/cache"
	"github.com/collabhub/collabhub/internal/captcha"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/test/storefakes"
)

const testPassword = "Abcd1234"

type testEnv struct {
	db       *storefakes.DB
	clock    *fakeClock
	cache    *cache.MemoryStore
	notifier *fakeNotifier
	captcha  *fakeCaptcha
	cfg      *config.Config
	hasher   *auth.PasswordHasher

	security *SecurityLog
	audit    *AuditTrail
	issuer   *TokenIssuer
	mfa      *MFAService
	guard    *Guard
	gdpr     *GDPRService
	auth     *AuthService
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Security.Password.MinLength = 8
	cfg.Security.Tokens = config.TokenConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		SigningKey:      "test-signing-key-0123456789abcdef0123456789",
		Issuer:          "collabhub-test",
	}
	cfg.Security.Lockout = config.LockoutConfig{
		Enabled:      true,
		FailureLimit: 5,
		Cooloff:      30 * time.Minute,
		Window:       30 * time.Minute,
	}
	cfg.MFA.TOTP = config.TOTPConfig{Issuer: "CollabHub", Digits: 6, Period: 30, Skew: 1}
	cfg.MFA.BackupCodeCount = 10
	cfg.AccountTokens = config.AccountTokensConfig{
		VerificationTTL:      24 * time.Hour,
		ResetTTL:             time.Hour,
		ResetRequestsPerHour: 3,
	}
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	db := storefakes.New()
	clock := &fakeClock{t: time.Now()}
	log := logger.Nop()
	hasher := auth.NewPasswordHasher(1024, 1, 1)

	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	require.NoError(t, err)
	box, err := auth.NewSecretBox("MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		clock:    clock,
		cache:    cache.NewMemoryStore(),
		notifier: &fakeNotifier{},
		captcha:  &fakeCaptcha{result: captcha.Result{Success: true, Skipped: true, Reason: captcha.ReasonSkipped}},
		cfg:      cfg,
		hasher:   hasher,
	}

	env.security = NewSecurityLog(db.SecurityEventStore(), nil, log)
	env.security.now = clock.Now
	env.audit = NewAuditTrail(db.AuditStore(), log)
	env.audit.now = clock.Now
	env.issuer = NewTokenIssuer(db.AccountTokenStore(), cfg.AccountTokens)
	env.issuer.now = clock.Now
	env.mfa = NewMFAService(db.MFAStore(), db.UserStore(), box, hasher, env.security, env.audit, cfg.MFA, log)
	env.mfa.now = clock.Now
	env.guard = NewGuard(env.cache, cfg.Security.Lockout, env.security, nil, log)
	env.gdpr = NewGDPRService(db.UserStore(), db.SecurityEventStore(), db.AuditStore(), db.GDPRStore(), hasher, env.security, env.audit, log)
	env.gdpr.now = clock.Now
	env.auth = NewAuthService(
		db.UserStore(),
		db.RefreshTokenStore(),
		env.issuer,
		env.mfa,
		env.guard,
		env.captcha,
		env.security,
		env.audit,
		env.notifier,
		tokenSvc,
		hasher,
		env.cache,
		nil,
		cfg,
		log,
	)
	env.auth.now = clock.Now
	return env
}

func testActor() Actor {
	return Actor{IP: "203.0.113.10", UserAgent: "go-test"}
}

// register creates a user through the register flow and returns it
func (e *testEnv) register(t *testing.T, username, email string) *model.User {
	t.Helper()
	res, err := e.auth.Register(context.Background(), testActor(), RegisterRequest{
		Username:  username,
		Email:     email,
		Password:  testPassword,
		Password2: testPassword,
		FirstName: "Test",
	})
	require.NoError(t, err)
	return res.User
}

// verifiedUser registers and verifies a user
func (e *testEnv) verifiedUser(t *testing.T, username, email string) *model.User {
	t.Helper()
	user := e.register(t, username, email)
	mail, ok := e.notifier.last("verification")
	require.True(t, ok)
	require.NoError(t, e.auth.VerifyEmail(context.Background(), testActor(), mail.token))
	return e.db.User(user.ID)
}

// enableMFA runs setup and confirmation and returns the secret and backup codes
func (e *testEnv) enableMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	actor := testActor()
	actor.UserID = userID

	setup, err := e.mfa.StartSetup(context.Background(), actor)
	require.NoError(t, err)

	codes, err := e.mfa.ConfirmSetup(context.Background(), actor, e.totpCode(t, setup.Secret, 0))
	require.NoError(t, err)
	return setup.Secret, codes.BackupCodes
}

// totpCode returns the code for secret at the fake clock shifted by offset
func (e *testEnv) totpCode(t *testing.T, secret string, offset time.Duration) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, e.clock.Now().Add(offset).UTC(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// addUser inserts a user directly into the fake store
func (e *testEnv) addUser(t *testing.T, id, email string, verified bool) *model.User {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)
	now := e.clock.Now()
	user := &model.User{
		ID:           id,
		Username:     id,
		Email:        email,
		Role:         model.RoleStudent,
		PasswordHash: hash,
		IsVerified:   verified,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.db.AddUser(user))
	return user
}
