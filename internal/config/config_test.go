package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COLLABHUB_SECURITY_TOKENS_SIGNING_KEY", "config-test-signing-key-0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Security.Password.MinLength)
	assert.Equal(t, 15*time.Minute, cfg.Security.Tokens.AccessTokenTTL)
	assert.Equal(t, 5, cfg.Security.Lockout.FailureLimit)
	assert.Equal(t, 30*time.Minute, cfg.Security.Lockout.Cooloff)
	assert.Equal(t, 24*time.Hour, cfg.AccountTokens.VerificationTTL)
	assert.Equal(t, time.Hour, cfg.AccountTokens.ResetTTL)
	assert.Equal(t, 3, cfg.AccountTokens.ResetRequestsPerHour)
	assert.Equal(t, 10, cfg.MFA.BackupCodeCount)
	assert.Equal(t, uint(1), cfg.MFA.TOTP.Skew)
	assert.Equal(t, 5*time.Second, cfg.Captcha.Timeout)
	assert.False(t, cfg.Captcha.Enabled)
	assert.False(t, cfg.Dev.AutoVerifyEmail)
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.False(t, cfg.Server.TrustProxy, "forwarded headers must be opt-in")
	assert.Contains(t, cfg.Server.TrustedProxies, "10.0.0.0/8")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("COLLABHUB_SECURITY_TOKENS_SIGNING_KEY", "config-test-signing-key-0123456789abcdef")
	t.Setenv("COLLABHUB_CAPTCHA_PROVIDER", "recaptcha")
	t.Setenv("COLLABHUB_DEV_AUTO_VERIFY_EMAIL", "true")
	t.Setenv("COLLABHUB_SECURITY_LOCKOUT_COOLOFF", "10m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "recaptcha", cfg.Captcha.Provider)
	assert.True(t, cfg.Dev.AutoVerifyEmail)
	assert.Equal(t, 10*time.Minute, cfg.Security.Lockout.Cooloff)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Security.Tokens.SigningKey = "config-test-signing-key-0123456789abcdef"
		cfg.Security.Lockout.FailureLimit = 5
		cfg.Captcha.Provider = "hcaptcha"
		return cfg
	}
	require.NoError(t, valid().Validate())

	proxied := valid()
	proxied.Server.TrustProxy = true
	proxied.Server.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.10"}
	require.NoError(t, proxied.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing signing key", func(c *Config) { c.Security.Tokens.SigningKey = "" }},
		{"short signing key", func(c *Config) { c.Security.Tokens.SigningKey = "short" }},
		{"zero failure limit", func(c *Config) { c.Security.Lockout.FailureLimit = 0 }},
		{"unknown captcha provider", func(c *Config) { c.Captcha.Provider = "turnstile" }},
		{"trusted proxies missing", func(c *Config) { c.Server.TrustProxy = true }},
		{"bad trusted proxy", func(c *Config) {
			c.Server.TrustProxy = true
			c.Server.TrustedProxies = []string{"10.0.0.0/33"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAddresses(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, Name: "collabhub", User: "app", Password: "pw", SSLMode: "disable"}
	assert.Contains(t, db.DSN(), "host=db")
	assert.Contains(t, db.DSN(), "dbname=collabhub")

	assert.Equal(t, "cache:6379", RedisConfig{Host: "cache", Port: 6379}.Addr())
}
