package storefakes

import (
	"context"
	"sync"

	"github.com/collabhub/collabhub/internal/model"
)

// DB holds every table
type DB struct {
	mu        sync.Mutex
	users     map[string]*model.User
	tokens    map[string]*model.AccountToken
	refresh   map[string]*model.RefreshToken
	backup    map[string]*model.BackupCode
	events    []model.SecurityEvent
	audits    []model.AuditLog
	deletions map[string]*model.DataDeletionRequest
	consents  []*model.ConsentRecord

	failEvents bool
}

// New creates an empty DB
func New() *DB {
	return &DB{
		users:     make(map[string]*model.User),
		tokens:    make(map[string]*model.AccountToken),
		refresh:   make(map[string]*model.RefreshToken),
		backup:    make(map[string]*model.BackupCode),
		deletions: make(map[string]*model.DataDeletionRequest),
	}
}

// Stores for the service constructors

func (db *DB) UserStore() *Users                 { return &Users{db: db} }
func (db *DB) AccountTokenStore() *AccountTokens { return &AccountTokens{db: db} }
func (db *DB) RefreshTokenStore() *RefreshTokens { return &RefreshTokens{db: db} }
func (db *DB) MFAStore() *MFA                    { return &MFA{db: db} }
func (db *DB) SecurityEventStore() *Events       { return &Events{db: db} }
func (db *DB) AuditStore() *Audits               { return &Audits{db: db} }
func (db *DB) GDPRStore() *GDPR                  { return &GDPR{db: db} }

// SetFailEvents makes security event writes fail
func (db *DB) SetFailEvents(fail bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failEvents = fail
}

// AddUser inserts a user as is
func (db *DB) AddUser(user *model.User) error {
	return db.UserStore().CreateWithProfile(context.Background(), user)
}

// Snapshots. Every accessor returns copies.

// User returns a copy of the user or nil
func (db *DB) User(id string) *model.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[id]
	if !ok {
		return nil
	}
	clone := *u
	return &clone
}

// Events returns every stored security event in insertion order
func (db *DB) Events() []model.SecurityEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]model.SecurityEvent(nil), db.events...)
}

// EventsOfType returns the stored security events of one type
func (db *DB) EventsOfType(t model.SecurityEventType) []model.SecurityEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []model.SecurityEvent
	for _, e := range db.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// AuditRows returns every audit row in insertion order
func (db *DB) AuditRows() []model.AuditLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]model.AuditLog(nil), db.audits...)
}

// AccountTokens returns every stored verification and reset token
func (db *DB) AccountTokens() []model.AccountToken {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]model.AccountToken, 0, len(db.tokens))
	for _, t := range db.tokens {
		out = append(out, *t)
	}
	return out
}

// RefreshTokens returns every stored refresh token
func (db *DB) RefreshTokens() []model.RefreshToken {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]model.RefreshToken, 0, len(db.refresh))
	for _, t := range db.refresh {
		out = append(out, *t)
	}
	return out
}

// BackupCodes returns every stored backup code
func (db *DB) BackupCodes() []model.BackupCode {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]model.BackupCode, 0, len(db.backup))
	for _, c := range db.backup {
		out = append(out, *c)
	}
	return out
}

// Deletions returns every data deletion request keyed by ID
func (db *DB) Deletions() map[string]model.DataDeletionRequest {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make(map[string]model.DataDeletionRequest, len(db.deletions))
	for id, d := range db.deletions {
		out[id] = *d
	}
	return out
}
