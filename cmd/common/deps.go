// Package common provides shared utilities for command implementations.
package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/webarchive/internal/config"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/metrics"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
)

// CommandDeps is what every archive command needs before it starts.
type CommandDeps struct {
	Logger   logger.Logger
	Config   *config.Config
	Resolver *storage.Resolver
	Registry *prometheus.Registry
	Stats    *metrics.Stats
}

// NewCommandDeps loads and validates the configuration held by the global
// viper instance and builds the logger, storage resolver and metrics.
func NewCommandDeps() (*CommandDeps, error) {
	cfg := config.LoadFromViper(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	resolver, err := NewResolver(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Debug("Configuration loaded", logger.String("config", cfg.String()))

	reg := prometheus.NewRegistry()
	return &CommandDeps{
		Logger:   log,
		Config:   cfg,
		Resolver: resolver,
		Registry: reg,
		Stats:    metrics.New(reg),
	}, nil
}

// NewResolver registers the remote backends enabled in cfg next to the
// local filesystem.
func NewResolver(cfg *config.Config, log logger.Logger) (*storage.Resolver, error) {
	resolver := storage.NewResolver()

	if cfg.MinIO.Enabled {
		backend, err := storage.NewMinIO(cfg.MinIO, log)
		if err != nil {
			return nil, err
		}
		resolver.Register(storage.SchemeMinIO, backend)
		log.Debug("Registered storage backend", logger.String("scheme", storage.SchemeMinIO))
	}
	if cfg.S3.Enabled {
		resolver.Register(storage.SchemeS3, storage.NewS3(cfg.S3, log))
		log.Debug("Registered storage backend", logger.String("scheme", storage.SchemeS3))
	}
	return resolver, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
