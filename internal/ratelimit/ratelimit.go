// Package ratelimit implements a fixed-window per-identity request counter.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks one counting window per identity. Crossing a window
// boundary resets the count to 1 atomically with the allowance decision, so
// concurrent callers on the same identity cannot slip past the limit.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window

	// Now is the clock used for window arithmetic. Tests may replace it.
	Now func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// New returns a limiter allowing limit requests per identity per window.
func New(limit int, windowLen time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  windowLen,
		windows: make(map[string]*window),
		Now:     time.Now,
	}
}

// Allow records a request for identity and reports whether it is within the
// limit. A denied request does not consume budget.
func (l *Limiter) Allow(identity string) bool {
	now := l.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[identity]
	if !ok || !now.Before(w.resetAt) {
		l.windows[identity] = &window{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if w.count < l.limit {
		w.count++
		return true
	}
	return false
}

// StartSweep launches a goroutine that periodically drops windows whose
// reset time has passed. Purely a memory bound; Allow is correct without it.
func (l *Limiter) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

func (l *Limiter) sweep() {
	now := l.Now()
	l.mu.Lock()
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
		}
	}
	l.mu.Unlock()
}
