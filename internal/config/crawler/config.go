// Package crawler provides configuration for the crawl engine that drives
// capture and replay sessions.
package crawler

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultParallelism = 2
	DefaultMaxDepth    = 2
	DefaultUserAgent   = "north-cloud-webarchive/1.0"
	DefaultTimeout     = 30 * time.Second
)

// Config represents the crawler configuration.
type Config struct {
	// StartURLs seed a live crawl
	StartURLs []string `yaml:"start_urls"`
	// AllowedDomains restricts visits; empty allows every domain
	AllowedDomains []string `yaml:"allowed_domains"`
	// MaxDepth limits link following (0 = unlimited)
	MaxDepth int `yaml:"max_depth"`
	// Parallelism is the number of concurrent requests
	Parallelism int `yaml:"parallelism"`
	// UserAgent is the user agent to use for requests
	UserAgent string `yaml:"user_agent"`
	// RequestTimeout is the timeout for each request
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Delay is the delay between requests to the same domain
	Delay time.Duration `yaml:"delay"`
	// ArchiveRegex, when set, limits archive iteration to matching URLs
	ArchiveRegex string `yaml:"archive_regex"`
	// DisallowRegex skips matching URLs during archive iteration
	DisallowRegex string `yaml:"disallow_regex"`
}

// New creates a new crawler configuration with default values.
func New() *Config {
	return &Config{
		MaxDepth:       DefaultMaxDepth,
		Parallelism:    DefaultParallelism,
		UserAgent:      DefaultUserAgent,
		RequestTimeout: DefaultTimeout,
	}
}

// LoadFromViper loads crawler configuration from Viper.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := New()

	if v.IsSet("crawler.start_urls") {
		cfg.StartURLs = v.GetStringSlice("crawler.start_urls")
	}
	if v.IsSet("crawler.allowed_domains") {
		cfg.AllowedDomains = v.GetStringSlice("crawler.allowed_domains")
	}
	if v.IsSet("crawler.max_depth") {
		cfg.MaxDepth = v.GetInt("crawler.max_depth")
	}
	if v.IsSet("crawler.parallelism") {
		cfg.Parallelism = v.GetInt("crawler.parallelism")
	}
	if v.IsSet("crawler.user_agent") {
		cfg.UserAgent = v.GetString("crawler.user_agent")
	}
	if v.IsSet("crawler.request_timeout") {
		cfg.RequestTimeout = v.GetDuration("crawler.request_timeout")
	}
	if v.IsSet("crawler.delay") {
		cfg.Delay = v.GetDuration("crawler.delay")
	}
	if v.IsSet("crawler.archive_regex") {
		cfg.ArchiveRegex = v.GetString("crawler.archive_regex")
	}
	if v.IsSet("crawler.disallow_regex") {
		cfg.DisallowRegex = v.GetString("crawler.disallow_regex")
	}

	return cfg
}

// Validate validates the crawler configuration.
func (c *Config) Validate() error {
	if c.Parallelism < 1 {
		return errors.New("parallelism must be positive")
	}
	if c.MaxDepth < 0 {
		return errors.New("max_depth must be non-negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must be non-negative")
	}
	if c.Delay < 0 {
		return errors.New("delay must be non-negative")
	}
	if _, err := c.ArchivePattern(); err != nil {
		return err
	}
	if _, err := c.DisallowPattern(); err != nil {
		return err
	}
	return nil
}

// ArchivePattern compiles ArchiveRegex. It returns nil when unset.
func (c *Config) ArchivePattern() (*regexp.Regexp, error) {
	return compileOptional("archive_regex", c.ArchiveRegex)
}

// DisallowPattern compiles DisallowRegex. It returns nil when unset.
func (c *Config) DisallowPattern() (*regexp.Regexp, error) {
	return compileOptional("disallow_regex", c.DisallowRegex)
}

func compileOptional(name, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return re, nil
}
