// Package archive provides configuration for capture sessions and replay.
package archive

import (
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
)

// Lookup strategies for picking a container when no source URI is set.
const (
	StrategyBefore = "before"
	StrategyAfter  = "after"
)

// Default configuration values
const (
	DefaultCollection = "webarchive"
	DefaultTimeout    = 60 * time.Second
	DefaultQueueSize  = 100
	DefaultStrategy   = StrategyAfter
)

// Config represents capture and replay settings.
type Config struct {
	// ExportURI is where containers are written; may contain
	// {year} {month} {day} {timestamp} {collection} placeholders
	ExportURI string `yaml:"export_uri"`
	// SourceURI lists containers to replay from, comma separated
	SourceURI string `yaml:"source_uri"`
	// Crawl iterates archived entries instead of the live start URLs
	Crawl bool `yaml:"crawl"`
	// Timeout bounds remote storage operations
	Timeout time.Duration `yaml:"timeout"`
	// Collection names records files and containers
	Collection  string `yaml:"collection"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	// Compress writes gzip-compressed records
	Compress bool `yaml:"compress"`
	// CaptureAsync hands captures to a background worker
	CaptureAsync bool `yaml:"capture_async"`
	// QueueSize bounds the async capture queue
	QueueSize int `yaml:"queue_size"`
	// StagingURI is where records files are written before packaging;
	// a temporary directory when empty
	StagingURI string `yaml:"staging_uri"`
	// Strict fails requests that are not in the archive instead of
	// answering 404
	Strict bool `yaml:"strict"`
	// FallbackLive fetches requests that are not in the archive from the network
	FallbackLive bool `yaml:"fallback_live"`
	// LookupTarget is the RFC 3339 time used to pick a container from the
	// export location
	LookupTarget string `yaml:"lookup_target"`
	// LookupStrategy is "before" or "after"
	LookupStrategy string `yaml:"lookup_strategy"`
	// RobotsObey is recorded in the warcinfo record
	RobotsObey bool `yaml:"robots_obey"`
}

// NewConfig returns a new archive configuration with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:        DefaultTimeout,
		Collection:     DefaultCollection,
		Compress:       true,
		QueueSize:      DefaultQueueSize,
		LookupStrategy: DefaultStrategy,
	}
}

// LoadFromViper loads archive configuration from Viper with environment variable overrides.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := NewConfig()

	if v.IsSet("archive.export_uri") {
		cfg.ExportURI = v.GetString("archive.export_uri")
	}
	if v.IsSet("archive.source_uri") {
		cfg.SourceURI = v.GetString("archive.source_uri")
	}
	if v.IsSet("archive.crawl") {
		cfg.Crawl = v.GetBool("archive.crawl")
	}
	if v.IsSet("archive.timeout") {
		cfg.Timeout = v.GetDuration("archive.timeout")
	}
	if v.IsSet("archive.collection") {
		cfg.Collection = v.GetString("archive.collection")
	}
	if v.IsSet("archive.title") {
		cfg.Title = v.GetString("archive.title")
	}
	if v.IsSet("archive.description") {
		cfg.Description = v.GetString("archive.description")
	}
	if v.IsSet("archive.compress") {
		cfg.Compress = v.GetBool("archive.compress")
	}
	if v.IsSet("archive.capture_async") {
		cfg.CaptureAsync = v.GetBool("archive.capture_async")
	}
	if v.IsSet("archive.queue_size") {
		cfg.QueueSize = v.GetInt("archive.queue_size")
	}
	if v.IsSet("archive.staging_uri") {
		cfg.StagingURI = v.GetString("archive.staging_uri")
	}
	if v.IsSet("archive.strict") {
		cfg.Strict = v.GetBool("archive.strict")
	}
	if v.IsSet("archive.fallback_live") {
		cfg.FallbackLive = v.GetBool("archive.fallback_live")
	}
	if v.IsSet("archive.lookup_target") {
		cfg.LookupTarget = v.GetString("archive.lookup_target")
	}
	if v.IsSet("archive.lookup_strategy") {
		cfg.LookupStrategy = v.GetString("archive.lookup_strategy")
	}
	if v.IsSet("archive.robots_obey") {
		cfg.RobotsObey = v.GetBool("archive.robots_obey")
	}

	// Environment variable overrides
	if v.IsSet("WEBARCHIVE_EXPORT_URI") {
		cfg.ExportURI = v.GetString("WEBARCHIVE_EXPORT_URI")
	}
	if v.IsSet("WEBARCHIVE_SOURCE_URI") {
		cfg.SourceURI = v.GetString("WEBARCHIVE_SOURCE_URI")
	}
	if v.IsSet("WEBARCHIVE_CRAWL") {
		cfg.Crawl = v.GetBool("WEBARCHIVE_CRAWL")
	}
	if v.IsSet("WEBARCHIVE_TIMEOUT") {
		cfg.Timeout = v.GetDuration("WEBARCHIVE_TIMEOUT")
	}
	if v.IsSet("WEBARCHIVE_LOOKUP_TARGET") {
		cfg.LookupTarget = v.GetString("WEBARCHIVE_LOOKUP_TARGET")
	}
	if v.IsSet("WEBARCHIVE_LOOKUP_STRATEGY") {
		cfg.LookupStrategy = v.GetString("WEBARCHIVE_LOOKUP_STRATEGY")
	}

	return cfg
}

// Sources returns the replay source URIs in the order listed.
func (c *Config) Sources() []string {
	return wacz.SplitSources(c.SourceURI)
}

// Target parses LookupTarget. A zero time is returned when it is unset.
func (c *Config) Target() (time.Time, error) {
	if c.LookupTarget == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.LookupTarget)
	if err != nil {
		return time.Time{}, apperrors.Wrap(apperrors.ErrConfiguration, "lookup_target", err)
	}
	return t, nil
}

// Validate validates the archive configuration.
func (c *Config) Validate() error {
	const op = "archive config"

	if c.Timeout < 0 {
		return apperrors.New(apperrors.ErrConfiguration, op, "timeout must be non-negative")
	}
	if c.CaptureAsync && c.QueueSize < 1 {
		return apperrors.New(apperrors.ErrConfiguration, op, "queue_size must be positive when capture_async is set")
	}
	switch c.LookupStrategy {
	case StrategyBefore, StrategyAfter:
	default:
		return apperrors.New(apperrors.ErrConfiguration, op, "unknown lookup_strategy %q", c.LookupStrategy)
	}
	if _, err := c.Target(); err != nil {
		return err
	}
	if c.ExportURI != "" {
		for _, src := range c.Sources() {
			if src == c.ExportURI {
				return apperrors.New(apperrors.ErrConfiguration, op,
					"export_uri and source_uri both name %q", src)
			}
		}
	}
	if c.Strict && c.FallbackLive {
		return apperrors.New(apperrors.ErrConfiguration, op, "strict and fallback_live are mutually exclusive")
	}
	return nil
}
