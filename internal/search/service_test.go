package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// countingProvider returns fixed results and counts invocations.
type countingProvider struct {
	calls   atomic.Int32
	results []Result
	err     error
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Search(_ context.Context, _ string, _ Options) ([]Result, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.results, nil
}

func newTestService(p Provider) *Service {
	return NewService(ServiceConfig{
		Provider:   p,
		BackendQPS: 1000, // keep tests fast
	})
}

func TestSearchCachesWithinTTL(t *testing.T) {
	p := &countingProvider{results: []Result{
		{Title: "Paris", URL: "https://en.wikipedia.org/wiki/Paris", Snippet: "capital of France"},
		{Title: "France", URL: "https://en.wikipedia.org/wiki/France", Snippet: "country"},
	}}
	s := newTestService(p)
	opts := Options{MaxResults: 3}

	first, err := s.Search(context.Background(), "capital of France", opts, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.Search(context.Background(), "capital of France", opts, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected exactly one backend invocation, got %d", p.calls.Load())
	}
	if len(first) != len(second) {
		t.Fatalf("result lists differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("result %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSearchCacheKeyNormalization(t *testing.T) {
	p := &countingProvider{results: []Result{{Title: "t", URL: "https://x.example"}}}
	s := newTestService(p)

	if _, err := s.Search(context.Background(), "Capital of France", Options{}, "id"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Search(context.Background(), "  capital of france ", Options{}, "id"); err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("case/whitespace variants must share a cache entry, got %d calls", p.calls.Load())
	}

	// Different effective options miss the cache.
	if _, err := s.Search(context.Background(), "capital of france", Options{MaxResults: 5}, "id"); err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("different options must not share a cache entry, got %d calls", p.calls.Load())
	}
}

func TestSearchCacheExpiry(t *testing.T) {
	now := time.Unix(5000, 0)
	p := &countingProvider{results: []Result{{Title: "t", URL: "https://x.example"}}}
	s := newTestService(p)
	s.cache.Now = func() time.Time { return now }

	ctx := context.Background()
	s.Search(ctx, "q", Options{}, "id")
	s.Search(ctx, "q", Options{}, "id")
	if p.calls.Load() != 1 {
		t.Fatalf("expected one call within TTL, got %d", p.calls.Load())
	}
	now = now.Add(21 * time.Minute)
	s.Search(ctx, "q", Options{}, "id")
	if p.calls.Load() != 2 {
		t.Fatalf("expected backend re-invocation after TTL, got %d", p.calls.Load())
	}
}

func TestSearchRateLimited(t *testing.T) {
	p := &countingProvider{results: []Result{{Title: "t", URL: "https://x.example"}}}
	s := NewService(ServiceConfig{Provider: p, RateLimit: 2, BackendQPS: 1000})

	ctx := context.Background()
	if _, err := s.Search(ctx, "q1", Options{}, "id"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Search(ctx, "q2", Options{}, "id"); err != nil {
		t.Fatal(err)
	}
	_, err := s.Search(ctx, "q3", Options{}, "id")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("denied call must not reach the backend, got %d calls", p.calls.Load())
	}
	// Another identity is unaffected.
	if _, err := s.Search(ctx, "q3", Options{}, "other"); err != nil {
		t.Fatalf("unrelated identity should pass: %v", err)
	}
}

func TestSearchInputValidation(t *testing.T) {
	p := &countingProvider{}
	s := newTestService(p)
	ctx := context.Background()

	if _, err := s.Search(ctx, "   ", Options{}, "id"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty query: expected ErrInvalidInput, got %v", err)
	}
	long := strings.Repeat("x", 501)
	if _, err := s.Search(ctx, long, Options{}, "id"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("oversized query: expected ErrInvalidInput, got %v", err)
	}
	if p.calls.Load() != 0 {
		t.Fatal("invalid input must never reach the backend")
	}
}

func TestSearchUnavailableWithoutProvider(t *testing.T) {
	s := NewService(ServiceConfig{})
	_, err := s.Search(context.Background(), "q", Options{}, "id")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSearchProviderFailureNormalized(t *testing.T) {
	p := &countingProvider{err: errors.New("backend exploded")}
	s := newTestService(p)

	_, err := s.Search(context.Background(), "q", Options{}, "id")
	if !errors.Is(err, ErrProviderFailed) {
		t.Fatalf("expected ErrProviderFailed, got %v", err)
	}
	// Failures are not cached; the next call tries again.
	s.Search(context.Background(), "q", Options{}, "id")
	if p.calls.Load() != 2 {
		t.Fatalf("expected failure to bypass the cache, got %d calls", p.calls.Load())
	}
}
