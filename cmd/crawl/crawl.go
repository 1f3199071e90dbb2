// Package crawl implements the capture command: a live crawl recorded
// into a container.
package crawl

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/webarchive/cmd/common"
	"github.com/jonesrussell/north-cloud/webarchive/internal/archive"
	"github.com/jonesrussell/north-cloud/webarchive/internal/crawler"
	"github.com/jonesrussell/north-cloud/webarchive/internal/logger"
)

// Command returns the crawl command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl live pages and archive them",
		Long: `Crawl the given URLs (or crawler.start_urls) and write every exchange
into a container at archive.export_uri.`,
		RunE: run,
	}
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
	startURLs := args
	if len(startURLs) == 0 {
		startURLs = cfg.Crawler.StartURLs
	}

	a, err := archive.NewArchiver(cfg.Archive, deps.Resolver, deps.Logger, archive.WithStats(deps.Stats))
	if err != nil {
		return err
	}
	c, err := crawler.New(cfg.Crawler,
		crawler.WithLogger(deps.Logger),
		crawler.WithRobotsTxt(cfg.Archive.RobotsObey),
	)
	if err != nil {
		return err
	}

	deps.Logger.Info("Starting capture crawl",
		logger.Strings("start_urls", startURLs),
		logger.URI(cfg.Archive.ExportURI))

	res, conf, err := c.Capture(ctx, a, startURLs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "archived %d pages (%d failed) to %s\n", res.Visited, res.Failed, conf.URI)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d bytes\n", conf.Hash, conf.Bytes)
	return nil
}
