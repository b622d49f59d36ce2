package storefakes

import (
	"context"
	"time"

	"github.com/collabhub/collabhub/internal/model"
	"github.com/collabhub/collabhub/internal/repository"
)

// Events mimics repository.SecurityEventRepository
type Events struct{ db *DB }

func (s *Events) Create(_ context.Context, event *model.SecurityEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failEvents {
		return context.DeadlineExceeded
	}
	s.db.events = append(s.db.events, *event)
	return nil
}

func (s *Events) List(_ context.Context, filter model.SecurityEventFilter) ([]model.SecurityEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.SecurityEvent
	for i := len(s.db.events) - 1; i >= 0; i-- {
		e := s.db.events[i]
		if filter.UserID != "" && deref(e.UserID) != filter.UserID {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Audits mimics repository.AuditRepository
type Audits struct{ db *DB }

func (s *Audits) Create(_ context.Context, log *model.AuditLog) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audits = append(s.db.audits, *log)
	return nil
}

func (s *Audits) List(_ context.Context, filter model.AuditLogFilter) ([]model.AuditLog, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.AuditLog
	for i := len(s.db.audits) - 1; i >= 0; i-- {
		a := s.db.audits[i]
		if filter.UserID != "" && deref(a.UserID) != filter.UserID {
			continue
		}
		if filter.EntityType != "" && a.EntityType != filter.EntityType {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// GDPR mimics repository.GDPRRepository
type GDPR struct{ db *DB }

func (s *GDPR) CreateDeletionRequest(_ context.Context, req *model.DataDeletionRequest) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	clone := *req
	s.db.deletions[req.ID] = &clone
	return nil
}

func (s *GDPR) FinishDeletionRequest(_ context.Context, req *model.DataDeletionRequest) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	clone := *req
	s.db.deletions[req.ID] = &clone
	return nil
}

func (s *GDPR) EraseUser(_ context.Context, userID string, _ time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[userID]; !ok {
		return 0, repository.ErrNotFound
	}
	var n int64
	anon := model.AnonymizedUserID
	for i := range s.db.events {
		e := &s.db.events[i]
		if deref(e.UserID) == userID {
			e.UserID = &anon
			details := make(map[string]interface{}, len(e.Details)+1)
			for k, v := range e.Details {
				details[k] = v
			}
			details["anonymized"] = true
			e.Details = details
			n++
		}
	}
	for i := range s.db.audits {
		if deref(s.db.audits[i].UserID) == userID {
			s.db.audits[i].UserID = &anon
			n++
		}
	}
	delete(s.db.users, userID)
	for id, c := range s.db.backup {
		if c.UserID == userID {
			delete(s.db.backup, id)
		}
	}
	for id, t := range s.db.tokens {
		if t.UserID == userID {
			delete(s.db.tokens, id)
		}
	}
	for id, t := range s.db.refresh {
		if t.UserID == userID {
			delete(s.db.refresh, id)
		}
	}
	kept := s.db.consents[:0]
	for _, c := range s.db.consents {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	s.db.consents = kept
	return n, nil
}

func (s *GDPR) UpsertConsent(_ context.Context, consent *model.ConsentRecord) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[consent.UserID]; !ok {
		return repository.ErrNotFound
	}
	for _, c := range s.db.consents {
		if c.UserID == consent.UserID && c.ConsentType == consent.ConsentType {
			id := c.ID
			*c = *consent
			c.ID = id
			consent.ID = id
			return nil
		}
	}
	clone := *consent
	s.db.consents = append(s.db.consents, &clone)
	return nil
}

func (s *GDPR) ListConsents(_ context.Context, userID string) ([]model.ConsentRecord, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []model.ConsentRecord
	for i := len(s.db.consents) - 1; i >= 0; i-- {
		if c := s.db.consents[i]; c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
