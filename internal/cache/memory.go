package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local Store backed by go-cache
type MemoryStore struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemoryStore creates a MemoryStore that sweeps expired keys every minute
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

// Increment implements Store
func (m *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.c.Add(key, int64(1), window); err == nil {
		return 1, nil
	}
	n, err := m.c.IncrementInt64(key, 1)
	if err != nil {
		// expired between Add and IncrementInt64
		m.c.Set(key, int64(1), window)
		return 1, nil
	}
	return n, nil
}

// SetFlag implements Store
func (m *MemoryStore) SetFlag(_ context.Context, key string, ttl time.Duration) error {
	m.c.Set(key, true, ttl)
	return nil
}

// FlagTTL implements Store
func (m *MemoryStore) FlagTTL(_ context.Context, key string) (time.Duration, error) {
	_, exp, ok := m.c.GetWithExpiration(key)
	if !ok {
		return 0, nil
	}
	if exp.IsZero() {
		return NoExpiry, nil
	}
	if d := time.Until(exp); d > 0 {
		return d, nil
	}
	return 0, nil
}

// SetTime implements Store
func (m *MemoryStore) SetTime(_ context.Context, key string, t time.Time, ttl time.Duration) error {
	m.c.Set(key, t, ttl)
	return nil
}

// Time implements Store
func (m *MemoryStore) Time(_ context.Context, key string) (time.Time, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return time.Time{}, nil
	}
	t, _ := v.(time.Time)
	return t, nil
}

// Delete implements Store
func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}
