package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Log           LogConfig           `mapstructure:"log"`
	Security      SecurityConfig      `mapstructure:"security"`
	MFA           MFAConfig           `mapstructure:"mfa"`
	Captcha       CaptchaConfig       `mapstructure:"captcha"`
	Email         EmailConfig         `mapstructure:"email"`
	AccountTokens AccountTokensConfig `mapstructure:"account_tokens"`
	Dev           DevConfig           `mapstructure:"dev"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// TrustProxy honours X-Forwarded-For from peers in TrustedProxies. The
	// client is the rightmost forwarded address outside that list.
	TrustProxy     bool     `mapstructure:"trust_proxy"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	TLS            struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration. When Enabled is false the service
// keeps lockout counters in process memory.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Password     PasswordConfig     `mapstructure:"password"`
	Tokens       TokenConfig        `mapstructure:"tokens"`
	Lockout      LockoutConfig      `mapstructure:"lockout"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// PasswordConfig holds password policy and hashing parameters
type PasswordConfig struct {
	MinLength         int    `mapstructure:"min_length"`
	Argon2Memory      uint32 `mapstructure:"argon2_memory"`
	Argon2Iterations  uint32 `mapstructure:"argon2_iterations"`
	Argon2Parallelism uint8  `mapstructure:"argon2_parallelism"`
}

// TokenConfig holds access/refresh credential configuration
type TokenConfig struct {
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	SigningKey      string        `mapstructure:"signing_key"`
	Issuer          string        `mapstructure:"issuer"`
}

// LockoutConfig holds brute-force guard thresholds
type LockoutConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	FailureLimit int           `mapstructure:"failure_limit"`
	Cooloff      time.Duration `mapstructure:"cooloff"`
	// Window is how long a failure counter lives without new failures.
	Window time.Duration `mapstructure:"window"`
}

// RateLimitingConfig holds HTTP rate limiting configuration
type RateLimitingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DefaultLimit  int    `mapstructure:"default_limit"`
	DefaultWindow string `mapstructure:"default_window"`
}

// MFAConfig holds MFA configuration
type MFAConfig struct {
	TOTP            TOTPConfig `mapstructure:"totp"`
	BackupCodeCount int        `mapstructure:"backup_code_count"`
	// EncryptionKey is a base64 encoded 32 byte key used to seal TOTP secrets.
	// Secrets are stored in plaintext when empty.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// TOTPConfig holds TOTP configuration
type TOTPConfig struct {
	Issuer string `mapstructure:"issuer"`
	Digits int    `mapstructure:"digits"`
	Period int    `mapstructure:"period"`
	Skew   uint   `mapstructure:"skew"`
}

// CaptchaConfig holds CAPTCHA provider configuration
type CaptchaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Provider       string        `mapstructure:"provider"`
	SecretKey      string        `mapstructure:"secret_key"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	Timeout        time.Duration `mapstructure:"timeout"`
	// VerifyURL overrides the provider endpoint. Used for testing against stubs.
	VerifyURL string `mapstructure:"verify_url"`
}

// EmailConfig holds email sending configuration
type EmailConfig struct {
	// Provider is the email provider to use: "smtp", "gmail" or "log"
	Provider string `mapstructure:"provider"`
	// AppName is the application name shown in emails
	AppName string `mapstructure:"app_name"`
	// FrontendURL is the base URL used to build links in emails
	FrontendURL string `mapstructure:"frontend_url"`
	// SendRate caps outbound messages per second
	SendRate  float64          `mapstructure:"send_rate"`
	SMTP      SMTPEmailConfig  `mapstructure:"smtp"`
	Gmail     GmailEmailConfig `mapstructure:"gmail"`
}

// SMTPEmailConfig holds SMTP relay configuration
type SMTPEmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// TLSMode is one of "starttls", "ssl" or "none"
	TLSMode string `mapstructure:"tls_mode"`
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
	// SenderName is the display name for the sender
	SenderName string `mapstructure:"sender_name"`
}

// AccountTokensConfig holds lifetimes for emailed single-use tokens
type AccountTokensConfig struct {
	VerificationTTL      time.Duration `mapstructure:"verification_ttl"`
	ResetTTL             time.Duration `mapstructure:"reset_ttl"`
	ResetRequestsPerHour int           `mapstructure:"reset_requests_per_hour"`
}

// DevConfig holds switches that must never be enabled in production
type DevConfig struct {
	// AutoVerifyEmail marks new accounts verified at registration and skips
	// the verification email. Off unless explicitly set.
	AutoVerifyEmail bool `mapstructure:"auto_verify_email"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/collabhub")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("COLLABHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the service cannot run with
func (c *Config) Validate() error {
	if c.Security.Tokens.SigningKey == "" {
		return fmt.Errorf("security.tokens.signing_key is required")
	}
	if len(c.Security.Tokens.SigningKey) < 32 {
		return fmt.Errorf("security.tokens.signing_key must be at least 32 characters")
	}
	if c.Security.Lockout.FailureLimit < 1 {
		return fmt.Errorf("security.lockout.failure_limit must be positive")
	}
	switch c.Captcha.Provider {
	case "hcaptcha", "recaptcha":
	default:
		return fmt.Errorf("unsupported captcha provider: %s", c.Captcha.Provider)
	}
	if c.Server.TrustProxy {
		if len(c.Server.TrustedProxies) == 0 {
			return fmt.Errorf("server.trusted_proxies is required when server.trust_proxy is set")
		}
		for _, entry := range c.Server.TrustedProxies {
			if _, _, err := net.ParseCIDR(entry); err != nil && net.ParseIP(entry) == nil {
				return fmt.Errorf("server.trusted_proxies: invalid entry %q", entry)
			}
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.trusted_proxies", []string{
		"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7",
	})
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "collabhub")
	v.SetDefault("database.user", "collabhub")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security defaults
	v.SetDefault("security.password.min_length", 8)
	v.SetDefault("security.password.argon2_memory", 65536)
	v.SetDefault("security.password.argon2_iterations", 3)
	v.SetDefault("security.password.argon2_parallelism", 4)

	v.SetDefault("security.tokens.access_token_ttl", "15m")
	v.SetDefault("security.tokens.refresh_token_ttl", "24h")
	v.SetDefault("security.tokens.signing_key", "")
	v.SetDefault("security.tokens.issuer", "collabhub")

	v.SetDefault("security.lockout.enabled", true)
	v.SetDefault("security.lockout.failure_limit", 5)
	v.SetDefault("security.lockout.cooloff", "30m")
	v.SetDefault("security.lockout.window", "30m")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.default_limit", 100)
	v.SetDefault("security.rate_limiting.default_window", "1m")

	// MFA defaults
	v.SetDefault("mfa.totp.issuer", "CollabHub")
	v.SetDefault("mfa.totp.digits", 6)
	v.SetDefault("mfa.totp.period", 30)
	v.SetDefault("mfa.totp.skew", 1)
	v.SetDefault("mfa.backup_code_count", 10)
	v.SetDefault("mfa.encryption_key", "")

	// Captcha defaults
	v.SetDefault("captcha.enabled", false)
	v.SetDefault("captcha.provider", "hcaptcha")
	v.SetDefault("captcha.secret_key", "")
	v.SetDefault("captcha.score_threshold", 0.5)
	v.SetDefault("captcha.timeout", "5s")

	// Email defaults
	v.SetDefault("email.provider", "log")
	v.SetDefault("email.app_name", "CollabHub")
	v.SetDefault("email.frontend_url", "http://localhost:3000")
	v.SetDefault("email.send_rate", 5)
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.tls_mode", "starttls")
	v.SetDefault("email.gmail.sender_name", "CollabHub")

	// Account token defaults
	v.SetDefault("account_tokens.verification_ttl", "24h")
	v.SetDefault("account_tokens.reset_ttl", "1h")
	v.SetDefault("account_tokens.reset_requests_per_hour", 3)

	v.SetDefault("dev.auto_verify_email", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
