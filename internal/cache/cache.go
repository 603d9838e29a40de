// Package cache provides the notification cache and the staleness signal the
// action orchestrator uses after a confirmed remote mutation.
//
// Two concerns live here:
//
//   - NotificationCache: a byte-payload cache of rendered notifications used
//     by the read path (read-through with TTL).
//   - Invalidator: the fire-and-forget signal that a cached notification is
//     stale and must be refetched. Best-effort: a failed invalidation is
//     logged by the caller and never fails the action that triggered it.
//
// Implementations: Redis (shared across instances) and an in-process memory
// cache for tests and single-node deployments without Redis.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned by Get when no entry exists for the key.
var ErrCacheMiss = errors.New("cache miss")

// NotificationCache stores rendered notification payloads keyed by
// notification ID.
type NotificationCache interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Set(ctx context.Context, id string, payload []byte, ttl time.Duration) error
}

// Invalidator drops the cached representation of a notification so the next
// read refetches from the authoritative source. No acknowledgment is
// required; the returned error exists only for diagnostics.
type Invalidator interface {
	InvalidateNotification(ctx context.Context, notificationID string) error
}

// NoopInvalidator discards invalidation signals. Used in tests and when
// caching is disabled entirely.
type NoopInvalidator struct{}

// InvalidateNotification implements Invalidator.
func (NoopInvalidator) InvalidateNotification(context.Context, string) error { return nil }

// entry is one stored payload with its expiry.
type entry struct {
	payload []byte
	expires time.Time
}

// Memory is an in-process NotificationCache and Invalidator. Safe for
// concurrent use. Expired entries are dropped lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

// Get implements NotificationCache.
func (m *Memory) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.entries, id)
		return nil, ErrCacheMiss
	}
	return e.payload, nil
}

// Set implements NotificationCache. A non-positive ttl stores the entry
// without expiry.
func (m *Memory) Set(_ context.Context, id string, payload []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[id] = entry{payload: payload, expires: exp}
	m.mu.Unlock()
	return nil
}

// InvalidateNotification implements Invalidator.
func (m *Memory) InvalidateNotification(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}
