// Package minio provides MinIO configuration for the minio:// storage backend.
package minio

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the minio:// backend settings.
type Config struct {
	// Enabled registers the minio:// scheme with the resolver.
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	// AccessKey and SecretKey are static credentials.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	// Timeout bounds each remote call.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries counts retries after the first attempt.
	MaxRetries int `yaml:"max_retries"`
}

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
)

// NewConfig returns a disabled configuration pointing at a local server.
func NewConfig() *Config {
	return &Config{
		Endpoint:   "localhost:9000",
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
	}
}

// envPrefix names the environment overrides, e.g. WEBARCHIVE_MINIO_ENDPOINT.
const envPrefix = "WEBARCHIVE_MINIO_"

// LoadFromViper reads the minio section. Environment overrides win over the
// file.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := NewConfig()

	str := func(dst *string, name string) {
		for _, key := range []string{"minio." + name, envPrefix + strings.ToUpper(name)} {
			if v.IsSet(key) {
				*dst = v.GetString(key)
			}
		}
	}
	flag := func(dst *bool, name string) {
		for _, key := range []string{"minio." + name, envPrefix + strings.ToUpper(name)} {
			if v.IsSet(key) {
				*dst = v.GetBool(key)
			}
		}
	}

	flag(&cfg.Enabled, "enabled")
	str(&cfg.Endpoint, "endpoint")
	str(&cfg.AccessKey, "access_key")
	str(&cfg.SecretKey, "secret_key")
	flag(&cfg.UseSSL, "use_ssl")
	str(&cfg.Region, "region")
	if v.IsSet("minio.timeout") {
		cfg.Timeout = v.GetDuration("minio.timeout")
	}
	if v.IsSet("minio.max_retries") {
		cfg.MaxRetries = v.GetInt("minio.max_retries")
	}
	return cfg
}

// Validate reports every problem with an enabled configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("minio endpoint required when enabled"))
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		errs = append(errs, errors.New("minio access_key and secret_key required when enabled"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("minio timeout must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("minio max_retries must be non-negative"))
	}
	return errors.Join(errs...)
}
