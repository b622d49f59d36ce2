package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/model"
)

// Audited entity types
const (
	EntityUser          = "User"
	EntityProfile       = "Profile"
	EntityStartup       = "Startup"
	EntityOpportunity   = "Opportunity"
	EntityCollaboration = "Collaboration"
	EntityMessage       = "Message"
	EntityConversation  = "Conversation"
	EntityConnection    = "Connection"
	EntityApplication   = "Application"
)

var auditedEntities = map[string]bool{
	EntityUser:          true,
	EntityProfile:       true,
	EntityStartup:       true,
	EntityOpportunity:   true,
	EntityCollaboration: true,
	EntityMessage:       true,
	EntityConversation:  true,
	EntityConnection:    true,
	EntityApplication:   true,
}

// The audit subsystem's own records are never audited.
var auditExcluded = map[string]bool{
	"AuditLog":      true,
	"SecurityEvent": true,
	"Session":       true,
}

var sensitiveFieldMarkers = []string{"password", "secret", "token"}

// Change describes one mutation to record. Before is nil for creates and
// After is nil for deletes.
type Change struct {
	EntityType string
	EntityID   string
	EntityRepr string
	Action     model.AuditAction
	Before     map[string]string
	After      map[string]string
}

// AuditTrail records model changes as field diffs
type AuditTrail struct {
	store AuditStore
	log   *logger.Logger
	now   func() time.Time
}

// NewAuditTrail creates a new AuditTrail
func NewAuditTrail(store AuditStore, log *logger.Logger) *AuditTrail {
	return &AuditTrail{
		store: store,
		log:   log.WithComponent("audit_trail"),
		now:   time.Now,
	}
}

// RecordChange stores the fields that differ between Before and After.
// Updates that change nothing are not recorded. Failures are logged only.
func (a *AuditTrail) RecordChange(ctx context.Context, actor Actor, c Change) {
	if auditExcluded[c.EntityType] || !auditedEntities[c.EntityType] {
		return
	}

	diff := Diff(c.Before, c.After)
	if c.Action == model.AuditActionUpdate && len(diff) == 0 {
		return
	}

	changes := make(map[string]interface{}, len(diff))
	for k, v := range diff {
		changes[k] = v
	}

	entry := &model.AuditLog{
		ID:         generateID("aud"),
		UserID:     actor.userRef(),
		Action:     c.Action,
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		EntityRepr: c.EntityRepr,
		Changes:    changes,
		IPAddress:  actor.ipAddress(),
		CreatedAt:  a.now(),
	}

	ctx, cancel := detach(ctx)
	defer cancel()
	if err := a.store.Create(ctx, entry); err != nil {
		a.log.Error().Err(err).
			Str("entity_type", c.EntityType).
			Str("entity_id", c.EntityID).
			Msg("failed to record audit log")
	}
}

// List returns audit rows, newest first
func (a *AuditTrail) List(ctx context.Context, filter model.AuditLogFilter) ([]model.AuditLog, error) {
	return a.store.List(ctx, filter)
}

// Diff returns the changed fields between before and after. Sensitive
// fields carry model.RedactedValue in place of their values.
func Diff(before, after map[string]string) map[string]model.FieldChange {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	diff := make(map[string]model.FieldChange)
	for _, name := range names {
		oldVal, hadOld := before[name]
		newVal, hasNew := after[name]
		if hadOld && hasNew && oldVal == newVal {
			continue
		}

		var change model.FieldChange
		if hadOld {
			change.Old = fieldValue(name, oldVal)
		}
		if hasNew {
			change.New = fieldValue(name, newVal)
		}
		diff[name] = change
	}
	return diff
}

func fieldValue(name, value string) *string {
	if isSensitiveField(name) {
		redacted := model.RedactedValue
		return &redacted
	}
	return &value
}

func isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
