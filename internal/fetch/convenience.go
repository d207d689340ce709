package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"

	"golang.org/x/sync/errgroup"

	"github.com/verilearn/webgate/internal/extract"
)

// batchConcurrency is the fan-out for FetchAll. Hops within one fetch stay
// sequential; only independent URLs run in parallel.
const batchConcurrency = 3

// FetchJSON fetches rawURL requiring an application/json response and, when
// v is non-nil, unmarshals the body into it.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, v any, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	opts.AllowedContentTypes = []string{"application/json"}
	res, err := c.Fetch(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	if v != nil {
		if err := json.Unmarshal(res.Body, v); err != nil {
			return nil, fmt.Errorf("%w: malformed json: %v", ErrContentPolicy, err)
		}
	}
	return res, nil
}

// FetchText fetches rawURL and returns readable text: HTML responses are
// charset-decoded and stripped of markup, everything else is decoded and
// returned as-is.
func (c *Client) FetchText(ctx context.Context, rawURL string, opts Options) (string, *Result, error) {
	res, err := c.Fetch(ctx, rawURL, opts)
	if err != nil {
		return "", nil, err
	}
	body := extract.DecodeBody(res.Body, res.ContentType)
	if base, _, err := mime.ParseMediaType(res.ContentType); err == nil && base == "text/html" {
		return extract.FromHTML(body).Text, res, nil
	}
	return string(body), res, nil
}

// BatchItem is the per-URL outcome of FetchAll.
type BatchItem struct {
	URL    string
	Result *Result
	Err    error
}

// FetchAll fetches independent URLs with bounded concurrency. One URL's
// failure never cancels its siblings; every input produces an item in input
// order.
func (c *Client) FetchAll(ctx context.Context, urls []string, opts Options) []BatchItem {
	items := make([]BatchItem, len(urls))
	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			res, err := c.Fetch(ctx, u, opts)
			items[i] = BatchItem{URL: u, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
