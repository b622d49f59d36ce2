package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/captcha"
	"github.com/collabhub/collabhub/internal/model"
)

func TestRegisterLeavesUserUnverified(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.auth.Register(context.Background(), testActor(), RegisterRequest{
		Username:  "alice",
		Email:     " A@X.com ",
		Password:  testPassword,
		Password2: testPassword,
	})
	require.NoError(t, err)

	assert.True(t, res.VerificationRequired)
	assert.False(t, res.User.IsVerified)
	assert.Equal(t, "a@x.com", res.User.Email)
	assert.Equal(t, model.RoleStudent, res.User.Role)
	require.NotNil(t, res.Tokens)
	assert.NotEmpty(t, res.Tokens.Access)
	assert.NotEmpty(t, res.Tokens.Refresh)

	mail, ok := env.notifier.last("verification")
	require.True(t, ok)
	assert.Equal(t, "a@x.com", mail.email)

	rows := env.db.AuditRows()
	require.Len(t, rows, 1)
	assert.Equal(t, model.AuditActionCreate, rows[0].Action)
	hash := rows[0].Changes["password_hash"].(model.FieldChange)
	assert.Equal(t, model.RedactedValue, *hash.New)
}

func TestRegisterAutoVerifyNeedsExplicitOptIn(t *testing.T) {
	cfg := testConfig()
	cfg.Dev.AutoVerifyEmail = true
	env := newTestEnvWithConfig(t, cfg)

	res, err := env.auth.Register(context.Background(), testActor(), RegisterRequest{
		Username: "alice", Email: "a@x.com", Password: testPassword, Password2: testPassword,
	})
	require.NoError(t, err)
	assert.True(t, res.User.IsVerified)
	assert.False(t, res.VerificationRequired)
	assert.Equal(t, 0, env.notifier.count("verification"))
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "taken", "taken@x.com")

	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"bad email", RegisterRequest{Username: "bob", Email: "nope", Password: testPassword, Password2: testPassword}, ErrInvalidEmail},
		{"bad username", RegisterRequest{Username: "1bob", Email: "b@x.com", Password: testPassword, Password2: testPassword}, ErrInvalidUsername},
		{"bad role", RegisterRequest{Username: "bob", Email: "b@x.com", Password: testPassword, Password2: testPassword, Role: "admin"}, ErrInvalidRole},
		{"mismatch", RegisterRequest{Username: "bob", Email: "b@x.com", Password: testPassword, Password2: "Abcd12345"}, ErrPasswordMismatch},
		{"weak", RegisterRequest{Username: "bob", Email: "b@x.com", Password: "abcdefgh", Password2: "abcdefgh"}, ErrPasswordTooWeak},
		{"duplicate email", RegisterRequest{Username: "bob", Email: "TAKEN@x.com", Password: testPassword, Password2: testPassword}, ErrEmailAlreadyExists},
		{"duplicate username", RegisterRequest{Username: "Taken", Email: "b@x.com", Password: testPassword, Password2: testPassword}, ErrUsernameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(context.Background(), testActor(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// staleExistence hides existing users from the pre-insert checks, the way a
// concurrent registration that commits in between would.
type staleExistence struct {
	UserStore
}

func (staleExistence) ExistsByEmail(context.Context, string) (bool, error)    { return false, nil }
func (staleExistence) ExistsByUsername(context.Context, string) (bool, error) { return false, nil }

func TestRegisterRaceReportsTakenColumn(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "taken", "taken@x.com")
	env.auth.users = staleExistence{UserStore: env.auth.users}

	_, err := env.auth.Register(context.Background(), testActor(), RegisterRequest{
		Username: "Taken", Email: "new@x.com", Password: testPassword, Password2: testPassword,
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = env.auth.Register(context.Background(), testActor(), RegisterRequest{
		Username: "fresh", Email: "TAKEN@x.com", Password: testPassword, Password2: testPassword,
	})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestVerifyThenLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", "a@x.com")

	_, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	err = env.auth.VerifyEmail(ctx, testActor(), "wrong-token")
	assert.True(t, IsTokenError(err))

	mail, _ := env.notifier.last("verification")
	require.NoError(t, env.auth.VerifyEmail(ctx, testActor(), mail.token))

	res, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tokens.Access)
	assert.NotNil(t, env.db.User(res.User.ID).LastLoginAt)
	assert.Len(t, env.db.EventsOfType(model.EventLoginSuccess), 1)
}

func TestLoginUnverifiedIssuesNoTokens(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "usr_1", "a@x.com", false)

	res, err := env.auth.Login(context.Background(), testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Nil(t, res)

	for _, rt := range env.db.RefreshTokens() {
		assert.NotEqual(t, user.ID, rt.UserID)
	}
}

func TestLoginLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "usr_1", "a@x.com", true)

	for i := 0; i < 5; i++ {
		_, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: "Wrong1234"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// the correct password is rejected while locked
	_, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Len(t, env.db.EventsOfType(model.EventAccountLocked), 1)

	// another IP is unaffected
	other := testActor()
	other.IP = "198.51.100.20"
	_, err = env.auth.Login(ctx, other, LoginRequest{Email: "a@x.com", Password: testPassword})
	assert.NoError(t, err)
}

func TestSuccessfulLoginResetsFailureCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "usr_1", "a@x.com", true)

	for i := 0; i < 4; i++ {
		_, _ = env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: "Wrong1234"})
	}
	_, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, _ = env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: "Wrong1234"})
	}
	_, err = env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	assert.NoError(t, err)
}

func TestLoginUnknownUserCountsTowardLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "ghost@x.com", Password: "Wrong1234"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "ghost@x.com", Password: "Wrong1234"})
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestLoginWithMFA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "usr_1", "a@x.com", true)
	secret, codes := env.enableMFA(t, user.ID)

	_, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrMFARequired)

	_, err = env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword, MFACode: "000000"})
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	res, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword, MFACode: env.totpCode(t, secret, 0)})
	require.NoError(t, err)
	assert.False(t, res.UsedBackupCode)

	res, err = env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword, MFACode: codes[0]})
	require.NoError(t, err)
	assert.True(t, res.UsedBackupCode)
	assert.Equal(t, 9, res.BackupCodesRemaining)
}

func TestLoginCaptchaFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "usr_1", "a@x.com", true)
	env.captcha.result = captcha.Result{Reason: captcha.ReasonProviderError}

	_, err := env.auth.Login(context.Background(), testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	require.ErrorIs(t, err, ErrCaptchaFailed)

	var cerr *CaptchaError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, captcha.ReasonProviderError, cerr.Reason)

	events := env.db.EventsOfType(model.EventSuspiciousActivity)
	require.Len(t, events, 1)
	assert.Equal(t, model.SeverityWarning, events[0].Severity)
	assert.Equal(t, "provider_error", events[0].Details["captcha_reason"])
}

func TestLogoutAndRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "usr_1", "a@x.com", true)

	res, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)

	rotated, err := env.auth.Refresh(ctx, testActor(), res.Tokens.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.Refresh, rotated.Refresh)

	// replaying the rotated token revokes the whole family
	_, err = env.auth.Refresh(ctx, testActor(), res.Tokens.Refresh)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
	_, err = env.auth.Refresh(ctx, testActor(), rotated.Refresh)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
	assert.Len(t, env.db.EventsOfType(model.EventSuspiciousActivity), 2)

	// logout of an unknown token is a soft error
	assert.ErrorIs(t, env.auth.Logout(ctx, actorFor(user.ID), "garbage", nil), ErrTokenInvalid)
	assert.ErrorIs(t, env.auth.Logout(ctx, actorFor(user.ID), "", nil), ErrTokenInvalid)
}

func TestLogoutBlacklistsTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "usr_1", "a@x.com", true)
	other := env.addUser(t, "usr_2", "b@x.com", true)

	res, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)

	assert.ErrorIs(t, env.auth.Logout(ctx, actorFor(other.ID), res.Tokens.Refresh, nil), ErrForbidden)

	claims := &auth.TokenClaims{}
	claims.ID = "jti-1"
	claims.ExpiresAt = jwt.NewNumericDate(env.clock.Now().Add(10 * time.Minute))

	require.NoError(t, env.auth.Logout(ctx, actorFor(user.ID), res.Tokens.Refresh, claims))
	// logging out twice is fine
	require.NoError(t, env.auth.Logout(ctx, actorFor(user.ID), res.Tokens.Refresh, nil))

	_, err = env.auth.Refresh(ctx, testActor(), res.Tokens.Refresh)
	assert.Error(t, err)

	ttl, err := env.cache.FlagTTL(ctx, auth.RevokedAccessKey("jti-1"))
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.NotEmpty(t, env.db.EventsOfType(model.EventTokenBlacklist))
}

func TestGenericEmailFlows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", "a@x.com")
	before := env.notifier.count("verification")

	env.auth.ResendVerification(ctx, testActor(), "nobody@x.com")
	assert.Equal(t, before, env.notifier.count("verification"))

	env.auth.ResendVerification(ctx, testActor(), "A@x.com")
	assert.Equal(t, before+1, env.notifier.count("verification"))

	require.NoError(t, env.auth.RequestPasswordReset(ctx, testActor(), PasswordResetRequest{Email: "nobody@x.com"}))
	assert.Equal(t, 0, env.notifier.count("password_reset"))

	require.NoError(t, env.auth.RequestPasswordReset(ctx, testActor(), PasswordResetRequest{Email: "a@x.com"}))
	mail, ok := env.notifier.last("password_reset")
	require.True(t, ok)
	assert.Equal(t, "203.0.113.10", mail.ip)
}

func TestResendSkipsVerifiedUsers(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedUser(t, "alice", "a@x.com")
	before := env.notifier.count("verification")

	env.auth.ResendVerification(context.Background(), testActor(), "a@x.com")
	assert.Equal(t, before, env.notifier.count("verification"))
}

func TestPasswordResetRequestsAreCapped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "usr_1", "a@x.com", true)

	for i := 0; i < 5; i++ {
		require.NoError(t, env.auth.RequestPasswordReset(ctx, testActor(), PasswordResetRequest{Email: "a@x.com"}))
	}
	assert.Equal(t, 3, env.notifier.count("password_reset"))

	env.clock.Advance(61 * time.Minute)
	require.NoError(t, env.auth.RequestPasswordReset(ctx, testActor(), PasswordResetRequest{Email: "a@x.com"}))
	assert.Equal(t, 4, env.notifier.count("password_reset"))
}

func TestConfirmPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "usr_1", "a@x.com", true)

	login, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, testActor(), PasswordResetRequest{Email: "a@x.com"}))
	mail, _ := env.notifier.last("password_reset")

	require.NoError(t, env.auth.ValidateResetToken(ctx, mail.token))
	require.NoError(t, env.auth.ValidateResetToken(ctx, mail.token))

	err = env.auth.ConfirmPasswordReset(ctx, testActor(), mail.token, "short")
	assert.ErrorIs(t, err, ErrPasswordTooWeak)

	require.NoError(t, env.auth.ConfirmPasswordReset(ctx, testActor(), mail.token, "NewPass99"))
	assert.True(t, IsTokenError(env.auth.ConfirmPasswordReset(ctx, testActor(), mail.token, "Other999x")))
	assert.True(t, IsTokenError(env.auth.ValidateResetToken(ctx, mail.token)))

	_, err = env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: "NewPass99"})
	assert.NoError(t, err)

	// sessions from before the reset are gone
	_, err = env.auth.Refresh(ctx, testActor(), login.Tokens.Refresh)
	assert.Error(t, err)
	cutoff, err := env.cache.Time(ctx, auth.RevokedBeforeKey("usr_1"))
	require.NoError(t, err)
	assert.False(t, cutoff.IsZero())
	assert.Len(t, env.db.EventsOfType(model.EventPasswordResetComplete), 1)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "usr_1", "a@x.com", true)

	err := env.auth.ChangePassword(ctx, actorFor(user.ID), "Wrong1234", "NewPass99")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	before, err := env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: testPassword})
	require.NoError(t, err)
	claims, err := env.auth.tokenSvc.ValidateAccessToken(before.Tokens.Access)
	require.NoError(t, err)

	env.clock.Advance(2 * time.Second)
	require.NoError(t, env.auth.ChangePassword(ctx, actorFor(user.ID), testPassword, "NewPass99"))
	_, err = env.auth.Login(ctx, testActor(), LoginRequest{Email: "a@x.com", Password: "NewPass99"})
	assert.NoError(t, err)
	assert.Len(t, env.db.EventsOfType(model.EventPasswordChange), 1)

	cutoff, err := env.cache.Time(ctx, auth.RevokedBeforeKey(user.ID))
	require.NoError(t, err)
	assert.True(t, env.clock.Now().Equal(cutoff))
	assert.True(t, auth.IssuedBefore(claims, cutoff))
}

func TestChangeRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "usr_1", "a@x.com", true)
	admin := actorFor("usr_admin")

	_, err := env.auth.ChangeRole(ctx, admin, user.ID, "overlord")
	assert.ErrorIs(t, err, ErrInvalidRole)

	updated, err := env.auth.ChangeRole(ctx, admin, user.ID, "Investor")
	require.NoError(t, err)
	assert.Equal(t, model.RoleInvestor, updated.Role)
	assert.Equal(t, model.RoleInvestor, env.db.User(user.ID).Role)

	events := env.db.EventsOfType(model.EventRoleChange)
	require.Len(t, events, 1)
	assert.Equal(t, user.ID, *events[0].UserID)

	rows := env.db.AuditRows()
	require.NotEmpty(t, rows)
	last := rows[len(rows)-1]
	assert.Equal(t, "usr_admin", *last.UserID)
	assert.Contains(t, last.Changes, "role")
}
