package service

import (
	"context"
	"time"

	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
	"github.com/collabhub/collabhub/internal/model"
)

// Event is a security event to record. A zero Severity uses the type's
// default and an empty UserID falls back to the actor.
type Event struct {
	Type     model.SecurityEventType
	Severity model.Severity
	UserID   string
	Details  map[string]interface{}
}

// SecurityLog appends security events. Recording never fails the caller:
// store errors are logged and dropped.
type SecurityLog struct {
	store   SecurityEventStore
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewSecurityLog creates a new SecurityLog
func NewSecurityLog(store SecurityEventStore, m *metrics.Metrics, log *logger.Logger) *SecurityLog {
	return &SecurityLog{
		store:   store,
		metrics: m,
		log:     log.WithComponent("security_log"),
		now:     time.Now,
	}
}

// Record appends ev on behalf of actor
func (l *SecurityLog) Record(ctx context.Context, actor Actor, ev Event) {
	severity := ev.Severity
	if severity == "" {
		severity = ev.Type.DefaultSeverity()
	}
	userID := ev.UserID
	if userID == "" {
		userID = actor.UserID
	}

	event := &model.SecurityEvent{
		ID:        generateID("evt"),
		EventType: ev.Type,
		Severity:  severity,
		IPAddress: actor.ipAddress(),
		UserAgent: truncateUA(actor.UserAgent),
		Details:   ev.Details,
		CreatedAt: l.now(),
	}
	if userID != "" {
		event.UserID = &userID
	}

	l.log.SecurityEvent(string(ev.Type), string(severity), userID, derefString(event.IPAddress), ev.Details)
	l.metrics.SecurityEvent(string(ev.Type), string(severity))

	ctx, cancel := detach(ctx)
	defer cancel()
	if err := l.store.Create(ctx, event); err != nil {
		l.log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to record security event")
	}
}

// List returns recorded events, newest first
func (l *SecurityLog) List(ctx context.Context, filter model.SecurityEventFilter) ([]model.SecurityEvent, error) {
	return l.store.List(ctx, filter)
}

func truncateUA(ua string) string {
	if len(ua) > 512 {
		return ua[:512]
	}
	return ua
}
