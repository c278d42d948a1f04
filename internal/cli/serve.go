package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackaudit/internal/server"
	"github.com/matzehuels/stackaudit/pkg/observability/prometheus"
	"github.com/matzehuels/stackaudit/pkg/pipeline"
	"github.com/matzehuels/stackaudit/pkg/report"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		metrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit over HTTP",
		Long: `Serve starts an HTTP server. POST /scan runs an audit for
{"libraries": [...]}; every run is archived and can be fetched again from
GET /reports/{id}. Prometheus metrics are exposed on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := *c.config()
			if addr != "" {
				cfg.Server.Addr = addr
			}
			// Runs are archived rather than written to a shared output file.
			cfg.Report.OutputPath = ""
			store, err := report.NewStore(cfg.Report.ArchiveDir)
			if err != nil {
				return err
			}
			cfg.Report.ArchiveDir = store.Path()

			var srvCfg server.Config
			if metrics {
				hooks := prometheus.New()
				hooks.Register()
				srvCfg.Metrics = hooks.Handler()
			}

			runner, closeRunner, err := c.newRunner(ctx, &cfg, pipeline.WireOptions{})
			if err != nil {
				return err
			}
			defer closeRunner()

			srvCfg.Runner = runner
			srvCfg.Reports = store
			srvCfg.Logger = c.Logger
			srvCfg.Timeout = timeout

			c.Logger.Info("Archiving runs", "dir", store.Path())
			return server.New(srvCfg).ListenAndServe(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: from config, :8080)")
	cmd.Flags().DurationVar(&timeout, "timeout", server.DefaultTimeout, "per-request limit")
	cmd.Flags().BoolVar(&metrics, "metrics", true, "expose Prometheus metrics on /metrics")

	return cmd
}
