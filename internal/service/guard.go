package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/collabhub/collabhub/internal/cache"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
	"github.com/collabhub/collabhub/internal/model"
)

// Guard counts failed logins per (username, IP) pair and locks the pair out
// once the failure limit is reached within the tracking window.
type Guard struct {
	store    cache.Store
	cfg      config.LockoutConfig
	security *SecurityLog
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewGuard creates a new Guard
func NewGuard(store cache.Store, cfg config.LockoutConfig, security *SecurityLog, m *metrics.Metrics, log *logger.Logger) *Guard {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.Cooloff <= 0 {
		cfg.Cooloff = 30 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = cfg.Cooloff
	}
	return &Guard{
		store:    store,
		cfg:      cfg,
		security: security,
		metrics:  m,
		log:      log.WithComponent("bruteforce_guard"),
	}
}

// Check returns ErrAccountLocked while the pair is locked out, along with
// the remaining lockout time. Store errors fail open.
func (g *Guard) Check(ctx context.Context, username, ip string) (time.Duration, error) {
	if !g.cfg.Enabled {
		return 0, nil
	}

	_, lockKey := guardKeys(username, ip)
	remaining, err := g.store.FlagTTL(ctx, lockKey)
	if err != nil {
		g.log.Error().Err(err).Msg("failed to read lockout state")
		return 0, nil
	}
	if remaining > 0 {
		return remaining, ErrAccountLocked
	}
	return 0, nil
}

// RecordFailure counts a failed attempt and reports whether it locked the
// pair out.
func (g *Guard) RecordFailure(ctx context.Context, actor Actor, username, userID string) bool {
	if !g.cfg.Enabled {
		return false
	}

	attemptsKey, lockKey := guardKeys(username, actor.IP)
	count, err := g.store.Increment(ctx, attemptsKey, g.cfg.Window)
	if err != nil {
		g.log.Error().Err(err).Msg("failed to count login failure")
		return false
	}
	if count < int64(g.cfg.FailureLimit) {
		return false
	}

	if err := g.store.SetFlag(ctx, lockKey, g.cfg.Cooloff); err != nil {
		g.log.Error().Err(err).Msg("failed to set lockout")
		return false
	}
	if err := g.store.Delete(ctx, attemptsKey); err != nil {
		g.log.Warn().Err(err).Msg("failed to clear failure counter")
	}

	g.metrics.Lockout()
	g.security.Record(ctx, actor, Event{
		Type:   model.EventAccountLocked,
		UserID: userID,
		Details: map[string]interface{}{
			"username":        normalizeUsername(username),
			"failures":        count,
			"cooloff_seconds": int(g.cfg.Cooloff.Seconds()),
		},
	})
	return true
}

// Reset clears the failure counter after a successful login
func (g *Guard) Reset(ctx context.Context, username, ip string) {
	if !g.cfg.Enabled {
		return
	}
	attemptsKey, _ := guardKeys(username, ip)
	if err := g.store.Delete(ctx, attemptsKey); err != nil {
		g.log.Warn().Err(err).Msg("failed to reset failure counter")
	}
}

// Unlock lifts a lockout on behalf of an administrator
func (g *Guard) Unlock(ctx context.Context, actor Actor, username, ip string) error {
	attemptsKey, lockKey := guardKeys(username, ip)
	if err := g.store.Delete(ctx, attemptsKey, lockKey); err != nil {
		return err
	}

	details := map[string]interface{}{
		"username": normalizeUsername(username),
		"ip":       ip,
	}
	g.security.Record(ctx, actor, Event{Type: model.EventAccountUnlocked, Details: details})
	g.security.Record(ctx, actor, Event{
		Type: model.EventAdminAction,
		Details: map[string]interface{}{
			"action":   "unlock",
			"username": normalizeUsername(username),
			"ip":       ip,
		},
	})
	return nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// guardKeys derives the counter and lock keys for a pair. The username is
// hashed so arbitrary input never reaches the key space.
func guardKeys(username, ip string) (attempts, lock string) {
	sum := sha256.Sum256([]byte(normalizeUsername(username) + "|" + strings.TrimSpace(ip)))
	id := hex.EncodeToString(sum[:16])
	return "lockout:attempts:" + id, "lockout:locked:" + id
}
