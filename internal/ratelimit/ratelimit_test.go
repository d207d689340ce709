package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAllowWithinWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(30, time.Minute)
	l.Now = func() time.Time { return now }

	for i := 1; i <= 30; i++ {
		if !l.Allow("user-1") {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	if l.Allow("user-1") {
		t.Fatal("call 31 within the window must be denied")
	}
	// A different identity has its own window.
	if !l.Allow("user-2") {
		t.Fatal("unrelated identity must not be affected")
	}
}

func TestWindowReset(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(2, time.Minute)
	l.Now = func() time.Time { return now }

	l.Allow("id")
	l.Allow("id")
	if l.Allow("id") {
		t.Fatal("expected denial at the limit")
	}

	// Exactly at resetAt plus a hair: new window, count restarts at 1.
	now = now.Add(time.Minute + time.Millisecond)
	if !l.Allow("id") {
		t.Fatal("expected allowance after window reset")
	}
	if !l.Allow("id") {
		t.Fatal("count should have restarted at 1")
	}
	if l.Allow("id") {
		t.Fatal("new window must enforce the same limit")
	}
}

func TestDenialDoesNotConsume(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(1, time.Minute)
	l.Now = func() time.Time { return now }

	l.Allow("id")
	for i := 0; i < 5; i++ {
		l.Allow("id")
	}
	now = now.Add(time.Minute + time.Second)
	if !l.Allow("id") {
		t.Fatal("denied calls must not extend or consume the next window")
	}
}

func TestSweepDropsStaleWindows(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New(5, time.Minute)
	l.Now = func() time.Time { return now }
	l.Allow("a")
	l.Allow("b")
	now = now.Add(2 * time.Minute)
	l.sweep()
	l.mu.Lock()
	n := len(l.windows)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected stale windows to be purged, have %d", n)
	}
}

func TestConcurrentAllowance(t *testing.T) {
	l := New(50, time.Minute)
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 50 {
		t.Fatalf("expected exactly 50 allowances, got %d", got)
	}
}
