// Package s3 provides Amazon S3 configuration for the s3:// storage backend.
package s3

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config represents S3 connection settings.
type Config struct {
	// Enabled registers the s3:// scheme with the resolver
	Enabled bool `yaml:"enabled"`
	// Region is the AWS region of the buckets
	Region string `yaml:"region"`
	// Endpoint overrides the service endpoint (S3-compatible stores, localstack)
	Endpoint string `yaml:"endpoint"`
	// AccessKey, SecretKey and SessionToken are static credentials
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
	// UsePathStyle addresses buckets as endpoint/bucket instead of bucket.endpoint
	UsePathStyle bool `yaml:"use_path_style"`
	// Timeout bounds each remote call
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries is the maximum number of retry attempts for transient failures
	MaxRetries int `yaml:"max_retries"`
}

const (
	defaultRegion     = "us-east-1"
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
)

// NewConfig returns a new S3 configuration with default values.
func NewConfig() *Config {
	return &Config{
		Region:     defaultRegion,
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
	}
}

// LoadFromViper loads S3 configuration from Viper with environment variable overrides.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := NewConfig()

	if v.IsSet("s3.enabled") {
		cfg.Enabled = v.GetBool("s3.enabled")
	}
	if v.IsSet("s3.region") {
		cfg.Region = v.GetString("s3.region")
	}
	if v.IsSet("s3.endpoint") {
		cfg.Endpoint = v.GetString("s3.endpoint")
	}
	if v.IsSet("s3.access_key") {
		cfg.AccessKey = v.GetString("s3.access_key")
	}
	if v.IsSet("s3.secret_key") {
		cfg.SecretKey = v.GetString("s3.secret_key")
	}
	if v.IsSet("s3.session_token") {
		cfg.SessionToken = v.GetString("s3.session_token")
	}
	if v.IsSet("s3.use_path_style") {
		cfg.UsePathStyle = v.GetBool("s3.use_path_style")
	}
	if v.IsSet("s3.timeout") {
		cfg.Timeout = v.GetDuration("s3.timeout")
	}
	if v.IsSet("s3.max_retries") {
		cfg.MaxRetries = v.GetInt("s3.max_retries")
	}

	// AWS-style environment overrides
	if v.IsSet("AWS_REGION") {
		cfg.Region = v.GetString("AWS_REGION")
	}
	if v.IsSet("AWS_ACCESS_KEY_ID") {
		cfg.AccessKey = v.GetString("AWS_ACCESS_KEY_ID")
	}
	if v.IsSet("AWS_SECRET_ACCESS_KEY") {
		cfg.SecretKey = v.GetString("AWS_SECRET_ACCESS_KEY")
	}
	if v.IsSet("AWS_SESSION_TOKEN") {
		cfg.SessionToken = v.GetString("AWS_SESSION_TOKEN")
	}

	return cfg
}

// Validate validates the S3 configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Region == "" {
		return errors.New("s3 region required when enabled")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("s3 access_key and secret_key must be set together")
	}
	if c.Timeout <= 0 {
		return errors.New("s3 timeout must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("s3 max_retries must be non-negative")
	}

	return nil
}
