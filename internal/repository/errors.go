package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Common repository errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when a guarded update matched no row because
	// another writer changed it first.
	ErrConflict = errors.New("concurrent modification")
	ErrExpired  = errors.New("record expired")
	ErrUsed     = errors.New("record already used")

	// ErrDuplicateEmail and ErrDuplicateUsername name the user column a
	// unique violation hit. Both match ErrDuplicate.
	ErrDuplicateEmail    = fmt.Errorf("%w: email", ErrDuplicate)
	ErrDuplicateUsername = fmt.Errorf("%w: username", ErrDuplicate)
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// isUniqueViolation reports whether err is a Postgres unique constraint error,
// returning the constraint name.
func isUniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
