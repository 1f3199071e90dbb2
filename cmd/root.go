// Package cmd implements the command-line interface for webarchive.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/webarchive/cmd/crawl"
	"github.com/jonesrussell/north-cloud/webarchive/cmd/index"
	"github.com/jonesrussell/north-cloud/webarchive/cmd/replay"
	"github.com/jonesrussell/north-cloud/webarchive/cmd/serve"
	archiveconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/archive"
	crawlerconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/crawler"
	serverconfig "github.com/jonesrussell/north-cloud/webarchive/internal/config/server"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// Execute builds the command tree and runs it.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "webarchive",
		Short: "Capture crawls into web archives and replay them",
		Long: `webarchive records crawler traffic into WACZ containers and serves
later crawls from them instead of the live network.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cfgFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return viper.BindPFlag("app.debug", cmd.Flags().Lookup("debug"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	root.PersistentFlags().Bool("debug", false, "log at debug level and run the API in gin debug mode")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "webarchive %s\n", Version)
			},
		},
		crawl.Command(),
		replay.Command(),
		index.Command(),
		serve.Command(Version),
	)
	return root
}

// loadConfig layers defaults, the config file, .env and the environment
// into the global viper instance.
func loadConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigFile("")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Variables already in the environment win over .env.
	_ = godotenv.Load()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return err
		}
	}

	for key, env := range map[string]string{"app.debug": "APP_DEBUG", "logging.level": "LOG_LEVEL"} {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":  "webarchive",
		"debug": false,
	})

	viper.SetDefault("logging", map[string]any{
		"level":        logger.DefaultLevel,
		"development":  false,
		"output_paths": []string{"stdout"},
	})

	viper.SetDefault("archive", map[string]any{
		"collection":      archiveconfig.DefaultCollection,
		"timeout":         archiveconfig.DefaultTimeout.String(),
		"queue_size":      archiveconfig.DefaultQueueSize,
		"lookup_strategy": archiveconfig.DefaultStrategy,
		"compress":        true,
	})

	viper.SetDefault("crawler", map[string]any{
		"max_depth":       crawlerconfig.DefaultMaxDepth,
		"parallelism":     crawlerconfig.DefaultParallelism,
		"user_agent":      crawlerconfig.DefaultUserAgent,
		"request_timeout": crawlerconfig.DefaultTimeout.String(),
	})

	viper.SetDefault("server", map[string]any{
		"address":       serverconfig.DefaultAddress,
		"read_timeout":  serverconfig.DefaultReadTimeout.String(),
		"write_timeout": serverconfig.DefaultWriteTimeout.String(),
		"idle_timeout":  serverconfig.DefaultIdleTimeout.String(),
	})
}
