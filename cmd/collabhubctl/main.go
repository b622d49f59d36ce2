// Command collabhubctl runs operator tasks against the auth database without
// going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/cache"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/database"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/repository"
	"github.com/collabhub/collabhub/internal/service"
)

var rootCmd = &cobra.Command{
	Use:           "collabhubctl",
	Short:         "Operator tool for the CollabHub auth service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newUnlockCmd())
	rootCmd.AddCommand(newAnonymizeCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newTokenStatsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the pieces of the service graph the commands need
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	users  *repository.UserRepository
	guard  *service.Guard
	gdpr   *service.GDPRService
	issuer *service.TokenIssuer

	closers []func() error
}

// cliActor attributes CLI actions in the security log
var cliActor = service.Actor{UserAgent: "collabhubctl"}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, "text").WithComponent("collabhubctl")

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &app{cfg: cfg, log: log, closers: []func() error{db.Close}}

	var store cache.Store
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		store = cache.NewRedisStore(rdb, "collabhub:")
	} else {
		log.Warn().Msg("redis disabled, lockouts live in server memory and cannot be lifted from here")
		store = cache.NewMemoryStore()
	}

	hasher := auth.NewPasswordHasher(
		cfg.Security.Password.Argon2Memory,
		cfg.Security.Password.Argon2Iterations,
		cfg.Security.Password.Argon2Parallelism,
	)

	a.users = repository.NewUserRepository(db)
	events := repository.NewSecurityEventRepository(db)
	audits := repository.NewAuditRepository(db)

	security := service.NewSecurityLog(events, nil, log)
	audit := service.NewAuditTrail(audits, log)
	a.guard = service.NewGuard(store, cfg.Security.Lockout, security, nil, log)
	a.gdpr = service.NewGDPRService(a.users, events, audits, repository.NewGDPRRepository(db), hasher, security, audit, log)
	a.issuer = service.NewTokenIssuer(repository.NewAccountTokenRepository(db), cfg.AccountTokens)
	return a, nil
}

// Close releases connections in reverse order of opening
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("failed to close connection")
		}
	}
}

// withApp builds the service graph for one command invocation
func withApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd, args)
	}
}
