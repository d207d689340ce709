package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/verilearn/webgate/internal/cache"
	"github.com/verilearn/webgate/internal/metrics"
	"github.com/verilearn/webgate/internal/ratelimit"
)

// ServiceConfig wires a Service. Zero fields take defaults.
type ServiceConfig struct {
	Provider Provider
	// CacheTTL is how long normalized query results are memoized.
	// Default 20 minutes.
	CacheTTL time.Duration
	// RateLimit / RateWindow bound per-identity calls. Default 30/min.
	RateLimit  int
	RateWindow time.Duration
	// BackendQPS smooths outbound calls to the backend so a burst of cache
	// misses cannot hammer it. Default 5.
	BackendQPS float64
	// MaxQueryLen caps accepted query length in runes. Default 500.
	MaxQueryLen int
	Metrics     *metrics.Metrics
}

// Service is the search entry point: input validation, per-identity rate
// limiting, TTL memoization, and backend normalization in one pipeline.
type Service struct {
	provider    Provider
	cache       *cache.Memo[[]Result]
	limiter     *ratelimit.Limiter
	smoother    *rate.Limiter
	metrics     *metrics.Metrics
	maxQueryLen int
}

// NewService builds a Service around the (possibly nil) provider.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 20 * time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.BackendQPS <= 0 {
		cfg.BackendQPS = 5
	}
	if cfg.MaxQueryLen <= 0 {
		cfg.MaxQueryLen = 500
	}
	return &Service{
		provider:    cfg.Provider,
		cache:       cache.NewMemo[[]Result](cfg.CacheTTL),
		limiter:     ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		smoother:    rate.NewLimiter(rate.Limit(cfg.BackendQPS), 1),
		metrics:     cfg.Metrics,
		maxQueryLen: cfg.MaxQueryLen,
	}
}

// Available reports whether any backend was configured at startup.
func (s *Service) Available() bool {
	return s != nil && s.provider != nil
}

// StartSweeps launches the optional background eviction goroutines for the
// cache and rate-limiter maps.
func (s *Service) StartSweeps(ctx context.Context, interval time.Duration) {
	s.cache.StartSweep(ctx, interval)
	s.limiter.StartSweep(ctx, interval)
}

// Search validates the query, charges identity against the rate limit,
// serves from cache when possible, and otherwise asks the backend.
func (s *Service) Search(ctx context.Context, query string, opts Options, identity string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if utf8.RuneCountInString(query) > s.maxQueryLen {
		return nil, fmt.Errorf("%w: query exceeds %d characters", ErrInvalidInput, s.maxQueryLen)
	}
	if !s.Available() {
		return nil, ErrProviderUnavailable
	}

	// The rate limit is charged before the backend or the cache is touched.
	if !s.limiter.Allow(identity) {
		s.metrics.SearchResult("denied")
		return nil, fmt.Errorf("%w: identity %s", ErrRateLimited, identity)
	}

	key := cacheKey(query, opts)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.SearchResult("hit")
		return cloneResults(cached), nil
	}

	if err := s.smoother.Wait(ctx); err != nil {
		return nil, err
	}
	results, err := s.provider.Search(ctx, query, opts)
	if err != nil {
		s.metrics.SearchResult("error")
		log.Warn().Str("provider", s.provider.Name()).Err(err).Msg("search backend failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, s.provider.Name(), err)
	}
	s.cache.Set(key, results)
	s.metrics.SearchResult("miss")
	return cloneResults(results), nil
}

// cacheKey derives the memoization key from the normalized query and the
// effective options.
func cacheKey(query string, opts Options) string {
	return cache.Key(
		strings.ToLower(query),
		strconv.Itoa(opts.limit()),
		strings.ToLower(opts.Region),
		strings.ToLower(opts.Language),
	)
}

// cloneResults hands each caller its own slice; cached results stay
// immutable.
func cloneResults(in []Result) []Result {
	out := make([]Result, len(in))
	copy(out, in)
	return out
}
