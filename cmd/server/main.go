package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/cache"
	"github.com/collabhub/collabhub/internal/captcha"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/database"
	"github.com/collabhub/collabhub/internal/email"
	"github.com/collabhub/collabhub/internal/handler"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
	"github.com/collabhub/collabhub/internal/middleware"
	"github.com/collabhub/collabhub/internal/repository"
	"github.com/collabhub/collabhub/internal/router"
	"github.com/collabhub/collabhub/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", handler.Version).Msg("starting CollabHub auth server")
	if cfg.Dev.AutoVerifyEmail {
		log.Warn().Msg("dev.auto_verify_email is enabled: new accounts skip email verification")
	}

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Counter store: Redis when enabled, otherwise process memory
	var (
		store cache.Store
		rdb   handler.HealthChecker
	)
	if cfg.Redis.Enabled {
		client, err := database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer client.Close()
		store = cache.NewRedisStore(client, "collabhub:")
		rdb = client
		log.Info().Msg("connected to Redis")
	} else {
		store = cache.NewMemoryStore()
		log.Warn().Msg("redis disabled, lockouts and rate limits are per process")
	}

	m := metrics.New()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	accountTokenRepo := repository.NewAccountTokenRepository(db)
	mfaRepo := repository.NewMFARepository(db)
	eventRepo := repository.NewSecurityEventRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	gdprRepo := repository.NewGDPRRepository(db)

	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}

	box, err := auth.NewSecretBox(cfg.MFA.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize MFA secret encryption")
	}
	if cfg.MFA.EncryptionKey == "" {
		log.Warn().Msg("mfa.encryption_key is not set, TOTP secrets are stored unencrypted")
	}

	hasher := auth.NewPasswordHasher(
		cfg.Security.Password.Argon2Memory,
		cfg.Security.Password.Argon2Iterations,
		cfg.Security.Password.Argon2Parallelism,
	)

	sender, err := newSender(context.Background(), cfg.Email, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email sender")
	}
	mailer := service.NewMailer(sender, cfg.Email, m, log)
	log.Info().Str("provider", cfg.Email.Provider).Msg("email sender initialized")

	// Initialize services
	security := service.NewSecurityLog(eventRepo, m, log)
	audit := service.NewAuditTrail(auditRepo, log)
	issuer := service.NewTokenIssuer(accountTokenRepo, cfg.AccountTokens)
	mfaSvc := service.NewMFAService(mfaRepo, userRepo, box, hasher, security, audit, cfg.MFA, log)
	guard := service.NewGuard(store, cfg.Security.Lockout, security, m, log)
	gdprSvc := service.NewGDPRService(userRepo, eventRepo, auditRepo, gdprRepo, hasher, security, audit, log)
	gate := captcha.NewGate(cfg.Captcha, log, m)
	authSvc := service.NewAuthService(
		userRepo,
		refreshRepo,
		issuer,
		mfaSvc,
		guard,
		gate,
		security,
		audit,
		mailer,
		tokenSvc,
		hasher,
		store,
		m,
		cfg,
		log,
	)

	// Initialize handlers
	h := handler.New(db, rdb, log, cfg, authSvc, mfaSvc, gdprSvc, guard, security, audit)

	// Initialize middleware
	mw := middleware.New(store, m, log, cfg)

	// Set up router
	var opts router.Options
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	r := router.New(h, mw, tokenSvc, m, opts)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Bool("tls", cfg.Server.TLS.Enabled).Msg("HTTP server listening")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Flush queued emails after the last request finished
	if err := mailer.Close(ctx); err != nil {
		log.Error().Err(err).Msg("email queue not drained")
	}

	log.Info().Msg("server stopped")
}

func newSender(ctx context.Context, cfg config.EmailConfig, log *logger.Logger) (email.Sender, error) {
	switch cfg.Provider {
	case "smtp":
		return email.NewSMTPSender(cfg.SMTP)
	case "gmail":
		return email.NewGmailSender(ctx, cfg.Gmail)
	case "log", "":
		return email.NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", cfg.Provider)
	}
}
