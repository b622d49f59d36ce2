package middleware

import (
	"net"

	"github.com/collabhub/collabhub/internal/cache"
	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	store   cache.Store
	metrics *metrics.Metrics
	log     *logger.Logger
	cfg     *config.Config
	proxies []*net.IPNet
}

// New creates a new Middleware instance. store backs rate limit counters and
// the access token blacklist.
func New(store cache.Store, m *metrics.Metrics, log *logger.Logger, cfg *config.Config) *Middleware {
	mw := &Middleware{
		store:   store,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
	if cfg.Server.TrustProxy {
		proxies, err := ParseTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			// Validate rejects this at startup; fall back to socket addresses
			log.Error().Err(err).Msg("ignoring trusted proxy list")
		}
		mw.proxies = proxies
	}
	return mw
}
