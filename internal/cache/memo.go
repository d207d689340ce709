// Package cache provides an in-process TTL memo cache. Entries expire
// lazily on read; an optional background sweep only bounds memory growth
// and is never required for correctness.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Memo is a mutex-guarded map of values keyed by digest. The zero value is
// not usable; construct with NewMemo.
type Memo[V any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry[V]

	// Now is the clock used for expiry decisions. Tests may replace it.
	Now func() time.Time
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
}

// NewMemo returns a cache whose entries live for ttl after insertion.
func NewMemo[V any](ttl time.Duration) *Memo[V] {
	return &Memo[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		Now:     time.Now,
	}
}

// Get returns the cached value for key if present and not expired. An
// expired entry is removed on the spot.
func (m *Memo[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if m.Now().After(ent.expiresAt) {
		delete(m.entries, key)
		var zero V
		return zero, false
	}
	return ent.value, true
}

// Set stores value under key with the configured TTL, replacing any
// existing entry.
func (m *Memo[V]) Set(key string, value V) {
	now := m.Now()
	m.mu.Lock()
	m.entries[key] = entry[V]{value: value, createdAt: now, expiresAt: now.Add(m.ttl)}
	m.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (m *Memo[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartSweep launches a goroutine that periodically drops expired entries
// until ctx is cancelled.
func (m *Memo[V]) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Memo[V]) sweep() {
	now := m.Now()
	m.mu.Lock()
	for k, ent := range m.entries {
		if now.After(ent.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
}

// Key derives a stable cache key from its parts.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(h[:])
}
