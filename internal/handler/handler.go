package handler

import (
	"context"

	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/service"
)

// HealthChecker is a dependency probed by the readiness endpoint
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	db       HealthChecker
	rdb      HealthChecker
	log      *logger.Logger
	cfg      *config.Config
	authSvc  *service.AuthService
	mfaSvc   *service.MFAService
	gdprSvc  *service.GDPRService
	guard    *service.Guard
	security *service.SecurityLog
	audit    *service.AuditTrail
}

// New creates a new Handler instance. rdb may be nil when Redis is disabled.
func New(db, rdb HealthChecker, log *logger.Logger, cfg *config.Config, authSvc *service.AuthService, mfaSvc *service.MFAService, gdprSvc *service.GDPRService, guard *service.Guard, security *service.SecurityLog, audit *service.AuditTrail) *Handler {
	return &Handler{
		db:       db,
		rdb:      rdb,
		log:      log.WithComponent("http"),
		cfg:      cfg,
		authSvc:  authSvc,
		mfaSvc:   mfaSvc,
		gdprSvc:  gdprSvc,
		guard:    guard,
		security: security,
		audit:    audit,
	}
}
