// Package replay implements the replay command: a crawl answered from
// archived containers.
package replay

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/webarchive/cmd/common"
	"github.com/jonesrussell/north-cloud/webarchive/internal/config"
	"github.com/jonesrussell/north-cloud/webarchive/internal/crawler"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
	"github.com/jonesrussell/north-cloud/webarchive/internal/metrics"
	"github.com/jonesrussell/north-cloud/webarchive/internal/replay"
)

var iterate bool

// Command returns the replay command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [url...]",
		Short: "Crawl from archived containers instead of the network",
		Long: `Replay a crawl against archive.source_uri, or against the container
picked from archive.export_uri by the lookup strategy. With --iterate every
archived entry is visited as a start request.`,
		RunE: run,
	}
	cmd.Flags().BoolVar(&iterate, "iterate", false, "visit every archived entry (overrides archive.crawl)")
	return cmd
}

// ReplayerOptions builds the replayer options shared by replay and serve.
func ReplayerOptions(cfg *config.Config, log logger.Logger, stats *metrics.Stats) ([]replay.Option, error) {
	archivePattern, err := cfg.Crawler.ArchivePattern()
	if err != nil {
		return nil, err
	}
	disallowPattern, err := cfg.Crawler.DisallowPattern()
	if err != nil {
		return nil, err
	}

	opts := []replay.Option{
		replay.WithLogger(log),
		replay.WithStats(stats),
		replay.WithFilters(replay.Filters{
			AllowedDomains: cfg.Crawler.AllowedDomains,
			Archive:        archivePattern,
			Disallow:       disallowPattern,
		}),
	}
	if cfg.Archive.FallbackLive {
		opts = append(opts, replay.WithFallback(crawler.NewHTTPTransport()))
	}
	return opts, nil
}

func run(cmd *cobra.Command, args []string) error {
	deps, err := cmdcommon.NewCommandDeps()
	if err != nil {
		return err
	}
	defer func() { _ = deps.Logger.Sync() }()

	ctx, cancel := cmdcommon.SignalContext(cmd.Context())
	defer cancel()

	cfg := deps.Config
	opts, err := ReplayerOptions(cfg, deps.Logger, deps.Stats)
	if err != nil {
		return err
	}
	r, err := replay.Open(ctx, deps.Resolver, cfg.Archive, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	c, err := crawler.New(cfg.Crawler,
		crawler.WithLogger(deps.Logger),
		crawler.WithRobotsTxt(cfg.Archive.RobotsObey),
	)
	if err != nil {
		return err
	}

	var res *crawler.Result
	if iterate || cfg.Archive.Crawl {
		res, err = c.Iterate(ctx, r)
	} else {
		startURLs := args
		if len(startURLs) == 0 {
			startURLs = cfg.Crawler.StartURLs
		}
		res, err = c.Replay(ctx, r, startURLs)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "replayed %d pages (%d failed, %d skipped)\n", res.Visited, res.Failed, res.Skipped)
	return nil
}
