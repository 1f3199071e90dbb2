// Package serve implements the serve command: the replay HTTP API.
package serve

import (
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	cmdcommon "github.com/jonesrussell/north-cloud/webarchive/cmd/common"
	cmdreplay "github.com/jonesrussell/north-cloud/webarchive/cmd/replay"
	"github.com/jonesrussell/north-cloud/webarchive/internal/api"
	"github.com/jonesrussell/north-cloud/webarchive/internal/replay"
)

// Command returns the serve command. version is reported by /health.
func Command(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve archived captures over HTTP",
		Long: `Open the replay sources and serve the merged index, lookups and
archived responses at server.address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, version)
		},
	}
}

func run(cmd *cobra.Command, version string) error {
	deps, err := cmdcommon.NewCommandDeps()
	if err != nil {
		return err
	}
	defer func() { _ = deps.Logger.Sync() }()

	ctx, cancel := cmdcommon.SignalContext(cmd.Context())
	defer cancel()

	cfg := deps.Config
	opts, err := cmdreplay.ReplayerOptions(cfg, deps.Logger, deps.Stats)
	if err != nil {
		return err
	}
	r, err := replay.Open(ctx, deps.Resolver, cfg.Archive, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	deps.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := api.NewHandler(r, deps.Registry, version, deps.Logger)
	srv := api.NewServer(cfg.Server, deps.Logger, handler.RegisterRoutes)
	return srv.Serve(ctx, nil)
}
