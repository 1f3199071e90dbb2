// Package config provides configuration management for webarchive. It
// loads every section from a viper instance populated from YAML files and
// environment variables.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/webarchive/internal/config/archive"
	"github.com/jonesrussell/north-cloud/webarchive/internal/config/crawler"
	"github.com/jonesrussell/north-cloud/webarchive/internal/config/minio"
	"github.com/jonesrussell/north-cloud/webarchive/internal/config/s3"
	"github.com/jonesrussell/north-cloud/webarchive/internal/config/server"
	apperrors "github.com/jonesrussell/north-cloud/webarchive/internal/errors"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
)

// Config represents the application configuration.
type Config struct {
	// Archive holds capture and replay settings
	Archive *archive.Config `yaml:"archive"`
	// Crawler holds crawl engine settings
	Crawler *crawler.Config `yaml:"crawler"`
	// Server holds HTTP API settings
	Server *server.Config `yaml:"server"`
	// MinIO holds minio:// backend settings
	MinIO *minio.Config `yaml:"minio"`
	// S3 holds s3:// backend settings
	S3 *s3.Config `yaml:"s3"`
	// Logging holds logger settings
	Logging logger.Config `yaml:"logging"`
}

// LoadFromViper builds the configuration from v.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Archive: archive.LoadFromViper(v),
		Crawler: crawler.LoadFromViper(v),
		Server:  server.LoadFromViper(v),
		MinIO:   minio.LoadFromViper(v),
		S3:      s3.LoadFromViper(v),
		Logging: logger.Config{
			Level:       v.GetString("logging.level"),
			Development: v.GetBool("logging.development"),
			OutputPaths: v.GetStringSlice("logging.output_paths"),
		},
	}
	if v.GetBool("app.debug") {
		cfg.Logging.Level = "debug"
		cfg.Server.Debug = true
	}
	cfg.Logging.SetDefaults()
	return cfg
}

// Validate validates every section. Failures are configuration errors.
func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"archive", c.Archive.Validate},
		{"crawler", c.Crawler.Validate},
		{"server", c.Server.Validate},
		{"minio", c.MinIO.Validate},
		{"s3", c.S3.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return apperrors.Wrap(apperrors.ErrConfiguration, s.name, err)
		}
	}
	return nil
}

// String summarizes the configuration without credentials.
func (c *Config) String() string {
	return fmt.Sprintf("export=%q sources=%q crawl=%t minio=%t s3=%t",
		c.Archive.ExportURI, c.Archive.SourceURI, c.Archive.Crawl, c.MinIO.Enabled, c.S3.Enabled)
}
