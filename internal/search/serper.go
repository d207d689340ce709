package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper queries the Serper.dev Google SERP API.
type Serper struct {
	APIKey     string
	BaseURL    string // overrides serperEndpoint, used in tests
	HTTPClient *http.Client
	UserAgent  string
}

func (s *Serper) Name() string { return "serper" }

func (s *Serper) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	endpoint := s.BaseURL
	if endpoint == "" {
		endpoint = serperEndpoint
	}
	payload := map[string]any{
		"q":   query,
		"num": opts.limit(),
	}
	if opts.Region != "" {
		payload["gl"] = opts.Region
	}
	if opts.Language != "" {
		payload["hl"] = opts.Language
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.APIKey)
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("serper status: %d", resp.StatusCode)
	}
	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(sr.Organic))
	for _, r := range sr.Organic {
		if r.Link == "" || r.Title == "" {
			continue
		}
		res := Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.Link),
			Snippet: strings.TrimSpace(r.Snippet),
			Source:  s.Name(),
		}
		if r.Position > 0 {
			res.Score = 1 / float64(r.Position)
		}
		out = append(out, res)
		if len(out) >= opts.limit() {
			break
		}
	}
	return out, nil
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}
