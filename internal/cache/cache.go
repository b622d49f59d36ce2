// Package cache provides the short-lived counter and flag storage used by
// the brute-force guard and request throttles.
package cache

import (
	"context"
	"time"

	"github.com/collabhub/collabhub/internal/database"
)

// NoExpiry is the FlagTTL of a flag set without an expiry
const NoExpiry = database.NoExpiry

// Store keeps expiring counters and flags
type Store interface {
	// Increment adds one to key and returns the new value. A new counter
	// expires after window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// SetFlag sets key for ttl. A zero ttl never expires.
	SetFlag(ctx context.Context, key string, ttl time.Duration) error
	// FlagTTL returns how long key remains set, NoExpiry for a flag that
	// never expires, or zero if unset.
	FlagTTL(ctx context.Context, key string) (time.Duration, error)
	// SetTime stores t at key for ttl.
	SetTime(ctx context.Context, key string, t time.Time, ttl time.Duration) error
	// Time returns the instant stored at key, or the zero time if unset.
	Time(ctx context.Context, key string) (time.Time, error)
	// Delete removes keys.
	Delete(ctx context.Context, keys ...string) error
}
