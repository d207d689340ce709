// Package config holds runtime configuration for the acquisition subsystem.
// Precedence is flags > environment > config file > defaults; flags live in
// the CLI, this package covers the rest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config is the full configuration surface.
type Config struct {
	// Search backends, probed in priority order Brave > Serper > SearxNG >
	// file. Search stays disabled when none is configured; fetch is always
	// available.
	BraveKey  string
	SerperKey string
	SearxURL  string
	SearxKey  string
	FilePath  string

	// Fetch policy.
	MaxBytes       int64
	TotalTimeout   time.Duration
	ConnectTimeout time.Duration
	MaxRedirects   int

	// Optional upstream DNS server ("host:port") for hostname validation.
	DNSUpstream string

	// Search pipeline.
	CacheTTL   time.Duration
	RateLimit  int
	RateWindow time.Duration

	UserAgent string
	Verbose   bool
}

// ApplyEnv populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	setString(&cfg.BraveKey, "BRAVE_SEARCH_API_KEY")
	setString(&cfg.SerperKey, "SERPER_API_KEY")
	setString(&cfg.SearxURL, "SEARX_URL", "SEARXNG_URL")
	setString(&cfg.SearxKey, "SEARX_KEY", "SEARXNG_KEY")
	setString(&cfg.FilePath, "SEARCH_FILE")
	setString(&cfg.DNSUpstream, "DNS_UPSTREAM")
	setString(&cfg.UserAgent, "FETCH_USER_AGENT")

	if cfg.MaxBytes == 0 {
		if n, err := strconv.ParseInt(os.Getenv("FETCH_MAX_BYTES"), 10, 64); err == nil && n > 0 {
			cfg.MaxBytes = n
		}
	}
	if cfg.MaxRedirects == 0 {
		if n, err := strconv.Atoi(os.Getenv("FETCH_MAX_REDIRECTS")); err == nil && n > 0 {
			cfg.MaxRedirects = n
		}
	}
	if cfg.RateLimit == 0 {
		if n, err := strconv.Atoi(os.Getenv("SEARCH_RATE_LIMIT")); err == nil && n > 0 {
			cfg.RateLimit = n
		}
	}
	setDuration(&cfg.TotalTimeout, "FETCH_TOTAL_TIMEOUT")
	setDuration(&cfg.ConnectTimeout, "FETCH_CONNECT_TIMEOUT")
	setDuration(&cfg.CacheTTL, "SEARCH_CACHE_TTL")
	setDuration(&cfg.RateWindow, "SEARCH_RATE_WINDOW")

	if !cfg.Verbose {
		switch os.Getenv("VERBOSE") {
		case "1", "true", "yes", "on":
			cfg.Verbose = true
		}
	}
}

func setString(dst *string, keys ...string) {
	if *dst != "" {
		return
	}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if *dst != 0 {
		return
	}
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			*dst = d
		}
	}
}

// fileConfig is the YAML config file schema.
type fileConfig struct {
	Search struct {
		Brave  string `yaml:"braveKey"`
		Serper string `yaml:"serperKey"`
		Searx  struct {
			URL string `yaml:"url"`
			Key string `yaml:"key"`
		} `yaml:"searx"`
		File       string `yaml:"file"`
		CacheTTL   string `yaml:"cacheTTL"`
		RateLimit  int    `yaml:"rateLimit"`
		RateWindow string `yaml:"rateWindow"`
	} `yaml:"search"`

	Fetch struct {
		MaxBytes       int64  `yaml:"maxBytes"`
		TotalTimeout   string `yaml:"totalTimeout"`
		ConnectTimeout string `yaml:"connectTimeout"`
		MaxRedirects   int    `yaml:"maxRedirects"`
		UserAgent      string `yaml:"userAgent"`
	} `yaml:"fetch"`

	DNSUpstream string `yaml:"dnsUpstream"`
	Verbose     bool   `yaml:"verbose"`
}

// ApplyFile fills unset cfg fields from the YAML file at path. A missing
// file is not an error so a default path can always be passed.
func ApplyFile(cfg *Config, path string) error {
	if cfg == nil || path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.BraveKey, fc.Search.Brave)
	fill(&cfg.SerperKey, fc.Search.Serper)
	fill(&cfg.SearxURL, fc.Search.Searx.URL)
	fill(&cfg.SearxKey, fc.Search.Searx.Key)
	fill(&cfg.FilePath, fc.Search.File)
	fill(&cfg.DNSUpstream, fc.DNSUpstream)
	fill(&cfg.UserAgent, fc.Fetch.UserAgent)

	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = fc.Fetch.MaxBytes
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = fc.Fetch.MaxRedirects
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = fc.Search.RateLimit
	}
	fillDuration := func(dst *time.Duration, v string) {
		if *dst != 0 || v == "" {
			return
		}
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
	fillDuration(&cfg.TotalTimeout, fc.Fetch.TotalTimeout)
	fillDuration(&cfg.ConnectTimeout, fc.Fetch.ConnectTimeout)
	fillDuration(&cfg.CacheTTL, fc.Search.CacheTTL)
	fillDuration(&cfg.RateWindow, fc.Search.RateWindow)
	if !cfg.Verbose {
		cfg.Verbose = fc.Verbose
	}
	return nil
}
