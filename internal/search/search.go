// Package search exposes a small family of interchangeable web-search
// backends behind one interface, fronted by a Service that validates input,
// rate-limits callers, and memoizes results.
package search

import (
	"context"
	"errors"
	"net/http"
)

// Failure modes surfaced to callers. Backend-specific failures are always
// normalized to ErrProviderFailed so the caller sees one taxonomy no matter
// which backend is active.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimited         = errors.New("rate limited")
	ErrProviderUnavailable = errors.New("no search provider configured")
	ErrProviderFailed      = errors.New("search provider failed")
)

// Result is a single search hit from any provider. Results are produced
// once and treated as read-only afterwards.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
	Source  string  `json:"source,omitempty"` // provider name, for observability
}

// Options tunes a single search call.
type Options struct {
	MaxResults int
	Region     string // e.g. "us"
	Language   string // e.g. "en"
}

func (o Options) limit() int {
	if o.MaxResults <= 0 {
		return 10
	}
	return o.MaxResults
}

// Provider is the minimal backend contract.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Credentials carries whatever backend configuration is present. Empty
// fields mean "not configured".
type Credentials struct {
	BraveKey  string
	SerperKey string
	SearxURL  string
	SearxKey  string
	FilePath  string
}

// SelectProvider probes creds in fixed priority order and returns the first
// configured backend, or nil when none is. Selection happens once at
// startup, never per call.
func SelectProvider(creds Credentials, client *http.Client, userAgent string) Provider {
	switch {
	case creds.BraveKey != "":
		return &Brave{APIKey: creds.BraveKey, HTTPClient: client, UserAgent: userAgent}
	case creds.SerperKey != "":
		return &Serper{APIKey: creds.SerperKey, HTTPClient: client, UserAgent: userAgent}
	case creds.SearxURL != "":
		return &SearxNG{BaseURL: creds.SearxURL, APIKey: creds.SearxKey, HTTPClient: client, UserAgent: userAgent}
	case creds.FilePath != "":
		return &FileProvider{Path: creds.FilePath}
	}
	return nil
}
