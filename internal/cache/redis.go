package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/collabhub/collabhub/internal/database"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store shared by every server instance
type RedisStore struct {
	rdb    *database.Redis
	prefix string
}

// NewRedisStore creates a RedisStore namespacing keys under prefix
func NewRedisStore(rdb *database.Redis, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Increment implements Store
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return s.rdb.IncrWithTTL(ctx, s.prefix+key, window)
}

// SetFlag implements Store
func (s *RedisStore) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.SetWithTTL(ctx, s.prefix+key, "1", ttl)
}

// FlagTTL implements Store
func (s *RedisStore) FlagTTL(ctx context.Context, key string) (time.Duration, error) {
	return s.rdb.TTL(ctx, s.prefix+key)
}

// SetTime implements Store. The instant is kept as unix nanoseconds.
func (s *RedisStore) SetTime(ctx context.Context, key string, t time.Time, ttl time.Duration) error {
	return s.rdb.SetWithTTL(ctx, s.prefix+key, strconv.FormatInt(t.UnixNano(), 10), ttl)
}

// Time implements Store
func (s *RedisStore) Time(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.rdb.GetString(ctx, s.prefix+key)
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseUnixNano(raw)
}

func parseUnixNano(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", raw, err)
	}
	return time.Unix(0, n), nil
}

// Delete implements Store
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	return s.rdb.Delete(ctx, prefixed...)
}
