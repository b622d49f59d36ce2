package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collabhub/internal/model"
)

func actorFor(userID string) Actor {
	a := testActor()
	a.UserID = userID
	return a
}

func TestMFASetupLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "usr_1", "a@x.com", true)
	ctx := context.Background()
	actor := actorFor("usr_1")

	status, err := env.mfa.Status(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, model.MFAStateDisabled, status.State)

	_, err = env.mfa.ConfirmSetup(ctx, actor, "123456")
	assert.ErrorIs(t, err, ErrMFASetupNotStarted)

	setup, err := env.mfa.StartSetup(ctx, actor)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	assert.Contains(t, setup.URI, "otpauth://totp/")
	assert.Contains(t, setup.URI, "issuer=CollabHub")

	stored := env.db.User("usr_1")
	assert.Equal(t, model.MFAStatePendingSetup, stored.MFAState())
	assert.NotContains(t, stored.MFASecret, setup.Secret, "secret is sealed at rest")

	// a wrong code keeps the setup pending and is logged
	_, err = env.mfa.ConfirmSetup(ctx, actor, "000000")
	assert.ErrorIs(t, err, ErrInvalidMFACode)
	assert.Equal(t, model.MFAStatePendingSetup, env.db.User("usr_1").MFAState())
	assert.Len(t, env.db.EventsOfType(model.EventMFAFailed), 1)

	codes, err := env.mfa.ConfirmSetup(ctx, actor, env.totpCode(t, setup.Secret, 0))
	require.NoError(t, err)
	assert.Len(t, codes.BackupCodes, 10)
	for _, c := range codes.BackupCodes {
		assert.Regexp(t, `^[0-9A-F]{4}-[0-9A-F]{4}$`, c)
	}

	status, err = env.mfa.Status(ctx, "usr_1")
	require.NoError(t, err)
	assert.True(t, status.MFAEnabled)
	assert.Equal(t, model.MFAStateEnabled, status.State)
	assert.Equal(t, 10, status.BackupCodesRemaining)
	assert.Len(t, env.db.EventsOfType(model.EventMFAEnabled), 1)

	for _, stored := range env.db.BackupCodes() {
		for _, plain := range codes.BackupCodes {
			assert.NotEqual(t, plain, stored.CodeHash)
		}
	}

	_, err = env.mfa.StartSetup(ctx, actor)
	assert.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}

func TestTOTPClockSkewWindow(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "usr_1", "a@x.com", true)
	secret, _ := env.enableMFA(t, user.ID)
	user = env.db.User(user.ID)
	ctx := context.Background()

	tests := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"now", 0, true},
		{"one step behind", -30 * time.Second, true},
		{"one step ahead", 30 * time.Second, true},
		{"two steps behind", -60 * time.Second, false},
		{"two steps ahead", 60 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.mfa.VerifyLogin(ctx, actorFor(user.ID), user, env.totpCode(t, secret, tt.offset))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMFACode)
			}
		})
	}
}

func TestVerifyLoginWithoutMFAPasses(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "usr_1", "a@x.com", true)

	res, err := env.mfa.VerifyLogin(context.Background(), actorFor(user.ID), user, "")
	require.NoError(t, err)
	assert.False(t, res.UsedBackupCode)
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "usr_1", "a@x.com", true)
	_, codes := env.enableMFA(t, user.ID)
	user = env.db.User(user.ID)
	ctx := context.Background()

	// case and separators do not matter
	input := " " + strings.ToLower(strings.Replace(codes[0], "-", " ", 1)) + " "
	res, err := env.mfa.VerifyLogin(ctx, actorFor(user.ID), user, input)
	require.NoError(t, err)
	assert.True(t, res.UsedBackupCode)
	assert.Equal(t, 9, res.BackupCodesRemaining)

	_, err = env.mfa.VerifyLogin(ctx, actorFor(user.ID), user, codes[0])
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	status, err := env.mfa.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, status.BackupCodesRemaining)
}

func TestConcurrentBackupCodeUseHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "usr_1", "a@x.com", true)
	_, codes := env.enableMFA(t, user.ID)
	user = env.db.User(user.ID)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.mfa.VerifyLogin(context.Background(), actorFor(user.ID), user, codes[3]); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestDisableRequiresPasswordAndTOTP(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "usr_1", "a@x.com", true)
	secret, codes := env.enableMFA(t, user.ID)
	ctx := context.Background()
	actor := actorFor(user.ID)

	err := env.mfa.Disable(ctx, actor, "wrong-password", env.totpCode(t, secret, 0))
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.mfa.Disable(ctx, actor, testPassword, "000000")
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	// backup codes are not accepted for disabling
	err = env.mfa.Disable(ctx, actor, testPassword, codes[0])
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	stored := env.db.User(user.ID)
	assert.True(t, stored.MFAEnabled)
	assert.NotEmpty(t, stored.MFASecret)

	require.NoError(t, env.mfa.Disable(ctx, actor, testPassword, env.totpCode(t, secret, 0)))

	stored = env.db.User(user.ID)
	assert.False(t, stored.MFAEnabled)
	assert.Empty(t, stored.MFASecret)
	assert.Equal(t, model.MFAStateDisabled, stored.MFAState())
	assert.Empty(t, env.db.BackupCodes())
	assert.Len(t, env.db.EventsOfType(model.EventMFADisabled), 1)

	err = env.mfa.Disable(ctx, actor, testPassword, env.totpCode(t, secret, 0))
	assert.ErrorIs(t, err, ErrMFANotEnabled)
}

func TestRegenerateBackupCodes(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "usr_1", "a@x.com", true)
	secret, oldCodes := env.enableMFA(t, user.ID)
	user = env.db.User(user.ID)
	ctx := context.Background()
	actor := actorFor(user.ID)

	_, err := env.mfa.RegenerateBackupCodes(ctx, actor, oldCodes[0])
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	fresh, err := env.mfa.RegenerateBackupCodes(ctx, actor, env.totpCode(t, secret, 0))
	require.NoError(t, err)
	assert.Len(t, fresh.BackupCodes, 10)

	_, err = env.mfa.VerifyLogin(ctx, actor, user, oldCodes[1])
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	res, err := env.mfa.VerifyLogin(ctx, actor, user, fresh.BackupCodes[0])
	require.NoError(t, err)
	assert.True(t, res.UsedBackupCode)
}

func TestNormalizeBackupCode(t *testing.T) {
	assert.Equal(t, "AB12CD34", NormalizeBackupCode(" ab12-cd34 "))
	assert.Equal(t, "AB12CD34", NormalizeBackupCode("AB12 CD34"))
	assert.Equal(t, "", NormalizeBackupCode(" - "))
}
