package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvBool parses key as a boolean.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key as a time.Duration such as "10s".
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// ApplyEnv overrides fields from SCRAPER_* environment variables and
// re-validates the result.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"SCRAPER_SEARCH_TERM":    &c.SearchTerm,
		"SCRAPER_OUTPUT":         &c.OutputFile,
		"SCRAPER_FORMAT":         &c.OutputFormat,
		"SCRAPER_BASE_URL":       &c.BaseURL,
		"SCRAPER_FETCHER":        &c.Fetcher,
		"SCRAPER_READY_SELECTOR": &c.ReadySelector,
		"SCRAPER_USER_AGENT":     &c.UserAgent,
		"SCRAPER_METRICS_ADDR":   &c.MetricsAddr,
		"SCRAPER_DATABASE_URL":   &c.DatabaseURL,
	}
	for key, field := range strs {
		if value, ok := EnvString(key); ok {
			*field = value
		}
	}

	durations := map[string]*time.Duration{
		"SCRAPER_READY_TIMEOUT": &c.ReadyTimeout,
		"SCRAPER_SCROLL_PAUSE":  &c.ScrollPause,
		"SCRAPER_PAGE_TIMEOUT":  &c.PageTimeout,
	}
	for key, field := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if ok {
			*field = value
		}
	}

	bools := map[string]*bool{
		"SCRAPER_HEADLESS":       &c.Headless,
		"SCRAPER_RESPECT_ROBOTS": &c.RespectRobotsTxt,
		"SCRAPER_VERBOSE":        &c.Verbose,
	}
	for key, field := range bools {
		value, ok, err := EnvBool(key)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if ok {
			*field = value
		}
	}

	c.normalize()
	return c.Validate()
}
