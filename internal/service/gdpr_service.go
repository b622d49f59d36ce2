package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/collabhub/collabhub/internal/auth"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/repository"
)

const (
	exportEventLimit = 100
	exportAuditLimit = 1000
)

// GDPRService handles data export and right-to-erasure requests
type GDPRService struct {
	users    UserStore
	events   SecurityEventStore
	audits   AuditStore
	store    GDPRStore
	hasher   *auth.PasswordHasher
	security *SecurityLog
	audit    *AuditTrail
	log      *logger.Logger
	now      func() time.Time
}

// NewGDPRService creates a new GDPRService
func NewGDPRService(
	users UserStore,
	events SecurityEventStore,
	audits AuditStore,
	store GDPRStore,
	hasher *auth.PasswordHasher,
	security *SecurityLog,
	audit *AuditTrail,
	log *logger.Logger,
) *GDPRService {
	return &GDPRService{
		users:    users,
		events:   events,
		audits:   audits,
		store:    store,
		hasher:   hasher,
		security: security,
		audit:    audit,
		log:      log.WithComponent("gdpr_service"),
		now:      time.Now,
	}
}

// Export gathers everything held about userID
func (s *GDPRService) Export(ctx context.Context, actor Actor, userID string) (*model.DataExport, error) {
	export := &model.DataExport{ExportDate: s.now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := s.users.GetByID(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		export.User = user
		return nil
	})
	g.Go(func() error {
		events, err := s.events.List(gctx, model.SecurityEventFilter{UserID: userID, Limit: exportEventLimit})
		if err != nil {
			return fmt.Errorf("failed to list security events: %w", err)
		}
		export.SecurityEvents = events
		return nil
	})
	g.Go(func() error {
		audits, err := s.audits.List(gctx, model.AuditLogFilter{UserID: userID, Limit: exportAuditLimit})
		if err != nil {
			return fmt.Errorf("failed to list audit logs: %w", err)
		}
		export.AuditLogs = audits
		return nil
	})
	g.Go(func() error {
		consents, err := s.store.ListConsents(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list consents: %w", err)
		}
		export.Consents = consents
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if export.SecurityEvents == nil {
		export.SecurityEvents = []model.SecurityEvent{}
	}
	if export.AuditLogs == nil {
		export.AuditLogs = []model.AuditLog{}
	}
	if export.Consents == nil {
		export.Consents = []model.ConsentRecord{}
	}

	s.security.Record(ctx, actor, Event{
		Type:   model.EventDataExport,
		UserID: userID,
		Details: map[string]interface{}{
			"security_events": len(export.SecurityEvents),
			"audit_logs":      len(export.AuditLogs),
			"consents":        len(export.Consents),
		},
	})
	return export, nil
}

// RecordConsent stores the actor's decision for one consent type, replacing
// any earlier decision for that type.
func (s *GDPRService) RecordConsent(ctx context.Context, actor Actor, consentType model.ConsentType, granted bool, text string) (*model.ConsentRecord, error) {
	if !consentType.Valid() {
		return nil, ErrInvalidConsentType
	}

	userAgent := actor.UserAgent
	if len(userAgent) > 500 {
		userAgent = userAgent[:500]
	}
	consent := &model.ConsentRecord{
		ID:          generateID("cns"),
		UserID:      actor.UserID,
		ConsentType: consentType,
		Granted:     granted,
		ConsentText: text,
		IPAddress:   actor.ipAddress(),
		UserAgent:   userAgent,
		Timestamp:   s.now(),
	}
	if err := s.store.UpsertConsent(ctx, consent); err != nil {
		return nil, fmt.Errorf("failed to record consent: %w", err)
	}
	return consent, nil
}

// Consents returns the user's consent decisions keyed by type
func (s *GDPRService) Consents(ctx context.Context, userID string) (map[model.ConsentType]bool, error) {
	records, err := s.store.ListConsents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	out := make(map[model.ConsentType]bool, len(records))
	for _, c := range records {
		out[c.ConsentType] = c.Granted
	}
	return out, nil
}

// DeleteAccount erases the actor's own account after re-checking the password
func (s *GDPRService) DeleteAccount(ctx context.Context, actor Actor, password, reason string) (*model.DataDeletionRequest, error) {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	match, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	if reason == "" {
		reason = "user request"
	}
	return s.Erase(ctx, actor, user, reason)
}

// Erase records a deletion request, anonymizes the user's trail and deletes
// the user. The events and audit row describing the deletion are written
// first so they are anonymized along with everything else.
func (s *GDPRService) Erase(ctx context.Context, actor Actor, user *model.User, reason string) (*model.DataDeletionRequest, error) {
	userID := user.ID
	req := &model.DataDeletionRequest{
		ID:          generateID("del"),
		UserID:      &userID,
		UserEmail:   user.Email,
		Status:      model.DeletionProcessing,
		Reason:      reason,
		IPAddress:   actor.ipAddress(),
		RequestedAt: s.now(),
	}
	if err := s.store.CreateDeletionRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to record deletion request: %w", err)
	}

	s.security.Record(ctx, actor, Event{
		Type:    model.EventAccountDeletion,
		UserID:  user.ID,
		Details: map[string]interface{}{"request_id": req.ID, "reason": reason},
	})
	s.audit.RecordChange(ctx, actor, Change{
		EntityType: EntityUser,
		EntityID:   user.ID,
		EntityRepr: user.Username,
		Action:     model.AuditActionDelete,
		Before:     user.AuditFields(),
	})

	anonymized, err := s.store.EraseUser(ctx, user.ID, s.now())
	completed := s.now()
	if err != nil {
		req.Status = model.DeletionPending
		req.DeletionLog = map[string]interface{}{"error": "erase failed"}
		if ferr := s.store.FinishDeletionRequest(ctx, req); ferr != nil {
			s.log.WithUserID(user.ID).Error().Err(ferr).Str("request_id", req.ID).Msg("failed to update deletion request")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to erase user: %w", err)
	}

	req.UserID = nil
	req.Status = model.DeletionCompleted
	req.CompletedAt = &completed
	req.DeletionLog = map[string]interface{}{
		"anonymized_rows": anonymized,
		"user_deleted":    true,
	}
	if err := s.store.FinishDeletionRequest(ctx, req); err != nil {
		s.log.Error().Err(err).Str("request_id", req.ID).Msg("failed to complete deletion request")
	}

	s.log.Info().Str("request_id", req.ID).Int64("anonymized_rows", anonymized).Msg("user erased")
	return req, nil
}
