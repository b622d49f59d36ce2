package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collabhub/internal/config"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(1024, 1, 1)

	hash, err := h.Hash("Abcd1234")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := h.Verify("Abcd1234", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("abcd1234", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := h.Hash("Abcd1234")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts must differ")

	assert.False(t, h.NeedsRehash(hash))
	assert.True(t, NewPasswordHasher(2048, 1, 1).NeedsRehash(hash))

	_, err = h.Verify("Abcd1234", "$2a$10$notargon")
	assert.ErrorIs(t, err, ErrMalformedHash)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Abcd1234", false},
		{"Ab1", true},
		{"password123", true},
		{"1234567890123", true},
		{"abcdefghij", true},
		{strings.Repeat("a1", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePassword(tt.password, 8)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice_b-2"))
	assert.Error(t, ValidateUsername(""))
	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername("1alice"))
	assert.Error(t, ValidateUsername("alice bob"))
	assert.Error(t, ValidateUsername(strings.Repeat("a", 31)))
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Alice@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	for _, bad := range []string{"", "alice", "alice@localhost", "Alice <alice@example.com>"} {
		_, err := NormalizeEmail(bad)
		assert.Error(t, err, bad)
	}
}

func TestOpaqueTokens(t *testing.T) {
	token, err := GenerateOpaqueToken(AccountTokenBytes)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, AccountTokenBytes)
	assert.NotContains(t, token, "=")

	other, err := GenerateOpaqueToken(AccountTokenBytes)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	assert.Equal(t, HashToken(token), HashToken(token))
	assert.Len(t, HashToken(token), 64)
}

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(config.TokenConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		SigningKey:      "auth-test-signing-key-0123456789abcdef",
		Issuer:          "collabhub-test",
	})
	require.NoError(t, err)
	return svc
}

func TestTokenService(t *testing.T) {
	svc := newTestTokenService(t)

	pair, refreshHash, err := svc.GenerateTokenPair(Subject{UserID: "usr_1", Email: "a@x.com", Role: "founder", IsStaff: true})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, 900, pair.ExpiresIn)
	assert.Equal(t, HashToken(pair.Refresh), refreshHash)

	claims, err := svc.ValidateAccessToken(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", claims.Subject)
	assert.Equal(t, "founder", claims.Role)
	assert.True(t, claims.IsStaff)
	assert.NotEmpty(t, claims.ID)

	_, err = svc.ValidateAccessToken(pair.Access + "x")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	svc.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	_, err = svc.ValidateAccessToken(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestIssuedBefore(t *testing.T) {
	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	claims := &TokenClaims{}
	claims.IssuedAt = jwt.NewNumericDate(issued)

	assert.False(t, IssuedBefore(claims, time.Time{}))
	assert.True(t, IssuedBefore(claims, issued.Add(time.Second)))
	assert.False(t, IssuedBefore(claims, issued.Add(300*time.Millisecond)))
	assert.False(t, IssuedBefore(claims, issued.Add(-time.Minute)))
	assert.False(t, IssuedBefore(&TokenClaims{}, issued.Add(time.Hour)))
}

func TestTokenServiceRejectsOtherIssuer(t *testing.T) {
	svc := newTestTokenService(t)
	other, err := NewTokenService(config.TokenConfig{
		AccessTokenTTL: time.Minute,
		SigningKey:     "auth-test-signing-key-0123456789abcdef",
		Issuer:         "someone-else",
	})
	require.NoError(t, err)

	pair, _, err := other.GenerateTokenPair(Subject{UserID: "usr_1"})
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	_, err = NewTokenService(config.TokenConfig{SigningKey: "short"})
	assert.Error(t, err)
}

func TestSecretBox(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	box, err := NewSecretBox(key)
	require.NoError(t, err)

	sealed, err := box.Seal("JBSWY3DPEHPK3PXP", "usr_1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "JBSWY3DPEHPK3PXP")

	plain, err := box.Open(sealed, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plain)

	_, err = box.Open(sealed, "usr_2")
	assert.Error(t, err, "sealed value is bound to its owner")

	// values written before a key was configured still open
	plain, err = box.Open("JBSWY3DPEHPK3PXP", "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plain)

	empty, err := NewSecretBox("")
	require.NoError(t, err)
	_, err = empty.Open(sealed, "usr_1")
	assert.Error(t, err)

	_, err = NewSecretBox(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
