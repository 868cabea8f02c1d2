package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	FetcherBrowser = "browser"
	FetcherHTTP    = "http"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// minDuration rejects bare numbers in config files, which decode as
// nanoseconds.
const minDuration = time.Millisecond

// Config holds scraper configuration.
type Config struct {
	SearchTerm       string        `yaml:"search_term"`
	OutputFile       string        `yaml:"output_file"`
	OutputFormat     string        `yaml:"output_format"` // csv, json, dual, or postgres
	BaseURL          string        `yaml:"base_url"`
	Fetcher          string        `yaml:"fetcher"` // browser or http
	ReadySelector    string        `yaml:"ready_selector"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"` // "10s"; bare numbers are nanoseconds
	ScrollPause      time.Duration `yaml:"scroll_pause"`
	PageTimeout      time.Duration `yaml:"page_timeout"`
	Headless         bool          `yaml:"headless"`
	UserAgent        string        `yaml:"user_agent"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	DatabaseURL      string        `yaml:"database_url"`
	Verbose          bool          `yaml:"verbose"`
}

// DefaultConfig returns defaults for the MercadoLibre Argentina listing site.
// SearchTerm and OutputFile have no defaults and must come from the config file.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat:     "csv",
		BaseURL:          "https://listado.mercadolibre.com.ar",
		Fetcher:          FetcherBrowser,
		ReadySelector:    "ol.ui-search-layout",
		ReadyTimeout:     10 * time.Second,
		ScrollPause:      2 * time.Second,
		PageTimeout:      90 * time.Second,
		Headless:         true,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		RespectRobotsTxt: false,
		Verbose:          false,
	}
}

// Load reads a JSON or YAML config file on top of DefaultConfig and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document on top of DefaultConfig. JSON documents are
// accepted since they are valid YAML.
func Parse(data []byte) (*Config, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: config document is empty", ErrInvalidConfig)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.SearchTerm = strings.TrimSpace(c.SearchTerm)
	c.OutputFile = strings.TrimSpace(c.OutputFile)
	c.OutputFormat = strings.ToLower(strings.TrimSpace(c.OutputFormat))
	c.Fetcher = strings.ToLower(strings.TrimSpace(c.Fetcher))
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SearchTerm == "" {
		return fmt.Errorf("%w: search_term cannot be empty", ErrInvalidConfig)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("%w: output_file cannot be empty", ErrInvalidConfig)
	}

	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL cannot be empty", ErrInvalidConfig)
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid base URL: %v", ErrInvalidConfig, err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%w: base URL must include a host", ErrInvalidConfig)
	}

	switch c.OutputFormat {
	case "csv", "json", "dual":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database_url is required for postgres output", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: output format must be csv, json, dual, or postgres", ErrInvalidConfig)
	}

	if c.Fetcher != FetcherBrowser && c.Fetcher != FetcherHTTP {
		return fmt.Errorf("%w: fetcher must be browser or http", ErrInvalidConfig)
	}
	if c.ReadySelector == "" {
		return fmt.Errorf("%w: ready selector cannot be empty", ErrInvalidConfig)
	}
	if c.ReadyTimeout < minDuration {
		return fmt.Errorf("%w: ready timeout %s is below %s (durations are strings like \"10s\")",
			ErrInvalidConfig, c.ReadyTimeout, minDuration)
	}
	if c.ScrollPause < 0 {
		return fmt.Errorf("%w: scroll pause cannot be negative", ErrInvalidConfig)
	}
	if c.ScrollPause > 0 && c.ScrollPause < minDuration {
		return fmt.Errorf("%w: scroll pause %s is below %s (durations are strings like \"2s\")",
			ErrInvalidConfig, c.ScrollPause, minDuration)
	}
	if c.PageTimeout < minDuration {
		return fmt.Errorf("%w: page timeout %s is below %s (durations are strings like \"90s\")",
			ErrInvalidConfig, c.PageTimeout, minDuration)
	}
	if c.PageTimeout < c.ReadyTimeout+c.ScrollPause {
		return fmt.Errorf("%w: page timeout (%s) must cover ready timeout plus scroll pause (%s)",
			ErrInvalidConfig, c.PageTimeout, c.ReadyTimeout+c.ScrollPause)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("%w: user agent cannot be empty", ErrInvalidConfig)
	}

	return nil
}

// BuildSearchURL renders the results-page URL for the configured search term,
// starting at the first result with indexing disabled.
func (c *Config) BuildSearchURL() string {
	return fmt.Sprintf("%s/%s_Desde_1_NoIndex_True", strings.TrimRight(c.BaseURL, "/"), url.PathEscape(c.SearchTerm))
}
