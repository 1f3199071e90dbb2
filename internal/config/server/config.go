// Package server provides server configuration types and functions.
package server

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Server defaults
const (
	DefaultAddress      = ":8080"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
)

// Config represents server-specific configuration settings.
type Config struct {
	// Address is the address to listen on (e.g., ":8080")
	Address string `yaml:"address"`
	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// Debug runs gin in debug mode
	Debug bool `yaml:"debug"`
}

// NewConfig creates a new Config instance with default values.
func NewConfig() *Config {
	return &Config{
		Address:      DefaultAddress,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
}

// LoadFromViper loads server configuration from Viper with environment variable overrides.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := NewConfig()

	if v.IsSet("server.address") {
		cfg.Address = v.GetString("server.address")
	}
	if v.IsSet("server.read_timeout") {
		cfg.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.idle_timeout") {
		cfg.IdleTimeout = v.GetDuration("server.idle_timeout")
	}
	if v.IsSet("server.debug") {
		cfg.Debug = v.GetBool("server.debug")
	}

	if v.IsSet("WEBARCHIVE_SERVER_ADDRESS") {
		cfg.Address = v.GetString("WEBARCHIVE_SERVER_ADDRESS")
	}

	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("server address is required")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return errors.New("server timeouts must be non-negative")
	}
	return nil
}
