// Package fetch implements the restricted outbound HTTP client. Every
// request pins its connections to addresses validated moments before by
// netguard, follows redirects one explicit hop at a time with full
// re-validation per hop, and enforces scheme, port, content-type, and size
// policy. It is deliberately not a general-purpose client.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verilearn/webgate/internal/metrics"
	"github.com/verilearn/webgate/internal/netguard"
)

// Failure modes. Callers branch with errors.Is; none of these are retried
// here.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrBlockedProtocol   = errors.New("blocked protocol")
	ErrTooManyRedirects  = errors.New("too many redirects")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrContentPolicy     = errors.New("content policy violation")
	ErrTimeout           = errors.New("timeout")

	// Re-exported so callers need only this package for the full taxonomy.
	ErrBlockedAddress   = netguard.ErrBlockedAddress
	ErrResolutionFailed = netguard.ErrResolutionFailed
)

// Options bounds a single logical fetch. Zero fields take the safe default.
type Options struct {
	// MaxBytes caps the response body. Default 10 MiB.
	MaxBytes int64
	// TotalTimeout bounds the whole operation including redirects and body
	// transfer. Default 10s.
	TotalTimeout time.Duration
	// ConnectTimeout bounds each connection attempt. Default 5s.
	ConnectTimeout time.Duration
	// MaxRedirects caps redirect hops. Default 2.
	MaxRedirects int
	// AllowedContentTypes are matched against the response's base media
	// type. Default: text/html, text/plain, application/json. XML-family
	// types are deliberately not in the default set.
	AllowedContentTypes []string
	// AllowedPorts restricts the URL port. Default: 443 only.
	AllowedPorts []int
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = 10 << 20
	}
	if o.TotalTimeout <= 0 {
		o.TotalTimeout = 10 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = 2
	}
	if len(o.AllowedContentTypes) == 0 {
		o.AllowedContentTypes = []string{"text/html", "text/plain", "application/json"}
	}
	if len(o.AllowedPorts) == 0 {
		o.AllowedPorts = []int{443}
	}
	return o
}

// Result is returned only on full, policy-compliant success. A failed or
// truncated transfer returns an error and no Result.
type Result struct {
	RequestedURL string
	FinalURL     string
	// ContentType preserves the full response header including parameters.
	ContentType string
	Body        []byte
	Size        int64
	Redirects   int
}

// hostResolver yields the validated address set for one hop.
type hostResolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, error)
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Client drives validated fetches. Resolver is required; the remaining
// fields have usable zero values.
type Client struct {
	Resolver  hostResolver
	UserAgent string
	Metrics   *metrics.Metrics

	// TLSClientConfig overrides transport TLS settings, used by tests
	// against httptest certificates.
	TLSClientConfig *tls.Config
	// DialContext overrides the raw TCP dialer, used by tests to count and
	// inspect connection attempts.
	DialContext dialFunc
}

// Fetch performs one logical GET: validate, pin, connect, stream, and
// re-validate on every redirect hop.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	res, err := c.fetch(ctx, rawURL, opts)
	c.observe(err, res)
	return res, err
}

func (c *Client) fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	if c.Resolver == nil {
		return nil, errors.New("fetch: Resolver not configured")
	}
	opts = opts.withDefaults()

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", ErrInvalidInput, err)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials embedded in url", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.TotalTimeout)
	defer cancel()

	current := u
	redirects := 0
	for {
		if err := checkSchemeAndPort(current, opts.AllowedPorts); err != nil {
			return nil, err
		}
		resp, closeHop, err := c.doHop(ctx, current, opts)
		if err != nil {
			return nil, timeoutAware(err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode <= 399 {
			location := resp.Header.Get("Location")
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			closeHop()

			if location == "" {
				return nil, fmt.Errorf("%w: status %d without Location", ErrProtocolViolation, resp.StatusCode)
			}
			redirects++
			if redirects > opts.MaxRedirects {
				return nil, fmt.Errorf("%w: more than %d hops", ErrTooManyRedirects, opts.MaxRedirects)
			}
			next, err := current.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("%w: unparseable Location %q", ErrProtocolViolation, location)
			}
			log.Debug().Str("from", current.String()).Str("to", next.String()).
				Int("hop", redirects).Msg("following redirect")
			// The prior hop's pinned set is gone; the new target starts a
			// fresh validation cycle.
			current = next
			continue
		}

		res, err := readResponse(resp, opts)
		closeHop()
		if err != nil {
			return nil, timeoutAware(err)
		}
		res.RequestedURL = rawURL
		res.FinalURL = current.String()
		res.Redirects = redirects
		return res, nil
	}
}

// doHop resolves, pins, and issues one request. The returned closer tears
// down the hop's transport so no pinned connection outlives the hop.
func (c *Client) doHop(ctx context.Context, u *url.URL, opts Options) (*http.Response, func(), error) {
	addrs, err := c.Resolver.Resolve(ctx, u.Hostname())
	if err != nil {
		return nil, nil, err
	}

	dial := c.DialContext
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	transport := &http.Transport{
		DialContext:         pinnedDialer(addrs, dial, opts.ConnectTimeout),
		TLSClientConfig:     c.TLSClientConfig,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		DisableKeepAlives:   true,
	}
	closeHop := transport.CloseIdleConnections

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		closeHop()
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", strings.Join(opts.AllowedContentTypes, ", "))

	client := &http.Client{
		Transport: transport,
		// Redirects are handled by the caller, one validated hop at a time.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		closeHop()
		return nil, nil, err
	}
	return resp, closeHop, nil
}

// pinnedDialer dials only the pre-validated addresses, in order, never
// consulting DNS. Whatever a live resolver would answer at connect time is
// irrelevant here, which is what closes the rebinding window.
func pinnedDialer(addrs []netip.Addr, dial dialFunc, connectTimeout time.Duration) dialFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		_, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, addr := range addrs {
			attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			conn, err := dial(attemptCtx, network, net.JoinHostPort(addr.String(), port))
			cancel()
			if err == nil {
				return conn, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				break
			}
		}
		if lastErr == nil {
			lastErr = errors.New("no validated addresses to dial")
		}
		return nil, lastErr
	}
}

// readResponse enforces status, content-type, and size policy while
// streaming the body. An over-limit stream is aborted, never truncated into
// a success.
func readResponse(resp *http.Response, opts Options) (*Result, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrProtocolViolation, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil || !containsType(opts.AllowedContentTypes, base) {
		return nil, fmt.Errorf("%w: content type %q not allowed", ErrContentPolicy, contentType)
	}

	if resp.ContentLength > opts.MaxBytes {
		return nil, fmt.Errorf("%w: declared length %d exceeds limit %d", ErrContentPolicy, resp.ContentLength, opts.MaxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > opts.MaxBytes {
		return nil, fmt.Errorf("%w: body exceeds limit %d", ErrContentPolicy, opts.MaxBytes)
	}

	return &Result{
		ContentType: contentType,
		Body:        body,
		Size:        int64(len(body)),
	}, nil
}

// checkSchemeAndPort is the structural gate that runs before any network
// activity, on the initial URL and again on every redirect target.
func checkSchemeAndPort(u *url.URL, allowedPorts []int) error {
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: scheme %q", ErrBlockedProtocol, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidInput)
	}
	port := 443
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("%w: port %q", ErrBlockedProtocol, p)
		}
		port = n
	}
	for _, allowed := range allowedPorts {
		if port == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: port %d", ErrBlockedProtocol, port)
}

func containsType(allowed []string, base string) bool {
	for _, t := range allowed {
		if strings.EqualFold(t, base) {
			return true
		}
	}
	return false
}

// timeoutAware folds context deadline errors into the taxonomy.
func timeoutAware(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (c *Client) observe(err error, res *Result) {
	switch {
	case err == nil:
		c.Metrics.FetchOutcome("ok")
		if res != nil {
			c.Metrics.FetchBytes(res.Size)
		}
	case errors.Is(err, ErrBlockedAddress):
		c.Metrics.FetchBlocked("blocked_address")
		c.Metrics.FetchOutcome("blocked")
	case errors.Is(err, ErrBlockedProtocol):
		c.Metrics.FetchBlocked("blocked_protocol")
		c.Metrics.FetchOutcome("blocked")
	case errors.Is(err, ErrContentPolicy):
		c.Metrics.FetchBlocked("content_policy")
		c.Metrics.FetchOutcome("blocked")
	case errors.Is(err, ErrTooManyRedirects):
		c.Metrics.FetchBlocked("too_many_redirects")
		c.Metrics.FetchOutcome("blocked")
	case errors.Is(err, ErrTimeout):
		c.Metrics.FetchOutcome("timeout")
	default:
		c.Metrics.FetchOutcome("error")
	}
}
