// Command webgate exercises the acquisition subsystem by hand: one-shot
// validated fetches and rate-limited cached searches from the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/verilearn/webgate/internal/config"
	"github.com/verilearn/webgate/internal/fetch"
	"github.com/verilearn/webgate/internal/netguard"
	"github.com/verilearn/webgate/internal/search"
)

const defaultUserAgent = "webgate/1.0 (+https://github.com/verilearn/webgate)"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Best effort; a missing .env is fine.
	_ = godotenv.Load()

	var (
		fetchURL    string
		searchQuery string
		configPath  string
		identity    string
		maxResults  int
		asText      bool
		verbose     bool
	)
	flag.StringVar(&fetchURL, "fetch", "", "URL to fetch through the validated client")
	flag.StringVar(&searchQuery, "search", "", "Query to run through the search service")
	flag.StringVar(&configPath, "config", "webgate.yaml", "Path to optional YAML config file")
	flag.StringVar(&identity, "identity", "cli", "Identity charged against the search rate limit")
	flag.IntVar(&maxResults, "n", 5, "Maximum search results")
	flag.BoolVar(&asText, "text", false, "Strip markup from fetched HTML")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	cfg := &config.Config{Verbose: verbose}
	config.ApplyEnv(cfg)
	if err := config.ApplyFile(cfg, configPath); err != nil {
		log.Fatal().Err(err).Msg("load config file")
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	ctx := context.Background()
	switch {
	case fetchURL != "":
		runFetch(ctx, cfg, fetchURL, asText)
	case searchQuery != "":
		runSearch(ctx, cfg, searchQuery, maxResults, identity)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runFetch(ctx context.Context, cfg *config.Config, rawURL string, asText bool) {
	client := &fetch.Client{
		Resolver:  &netguard.Resolver{Upstream: cfg.DNSUpstream},
		UserAgent: cfg.UserAgent,
	}
	opts := fetch.Options{
		MaxBytes:       cfg.MaxBytes,
		TotalTimeout:   cfg.TotalTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		MaxRedirects:   cfg.MaxRedirects,
	}

	if asText {
		text, res, err := client.FetchText(ctx, rawURL, opts)
		if err != nil {
			log.Fatal().Err(err).Str("url", rawURL).Msg("fetch failed")
		}
		log.Info().Str("finalURL", res.FinalURL).Int("redirects", res.Redirects).
			Int64("bytes", res.Size).Msg("fetched")
		fmt.Println(text)
		return
	}

	res, err := client.Fetch(ctx, rawURL, opts)
	if err != nil {
		log.Fatal().Err(err).Str("url", rawURL).Msg("fetch failed")
	}
	log.Info().Str("finalURL", res.FinalURL).Str("contentType", res.ContentType).
		Int("redirects", res.Redirects).Int64("bytes", res.Size).Msg("fetched")
	_, _ = os.Stdout.Write(res.Body)
}

func runSearch(ctx context.Context, cfg *config.Config, query string, maxResults int, identity string) {
	provider := search.SelectProvider(search.Credentials{
		BraveKey:  cfg.BraveKey,
		SerperKey: cfg.SerperKey,
		SearxURL:  cfg.SearxURL,
		SearxKey:  cfg.SearxKey,
		FilePath:  cfg.FilePath,
	}, &http.Client{Timeout: 20 * time.Second}, cfg.UserAgent)

	svc := search.NewService(search.ServiceConfig{
		Provider:   provider,
		CacheTTL:   cfg.CacheTTL,
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
	})
	if !svc.Available() {
		log.Fatal().Msg("no search backend configured; set BRAVE_SEARCH_API_KEY, SERPER_API_KEY, or SEARX_URL")
	}
	log.Debug().Str("provider", provider.Name()).Msg("selected search backend")

	results, err := svc.Search(ctx, query, search.Options{MaxResults: maxResults}, identity)
	if err != nil {
		log.Fatal().Err(err).Msg("search failed")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Fatal().Err(err).Msg("encode results")
	}
}
