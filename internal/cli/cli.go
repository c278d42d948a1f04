// Package cli implements the stackaudit command-line interface.
//
// Commands:
//   - analyze: run the full audit for packages or a requirements file
//   - resolve: print the resolved dependency graph
//   - scan: query OSV for pinned requirements
//   - serve: expose the audit over HTTP
//   - reports: list, show, delete and clean archived runs
//   - browse: explore a run interactively
//   - cache: inspect and clear the response cache
//
// Configuration is read from --config (or the XDG default), a .env file and
// the environment; --verbose forces debug logging.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackaudit/pkg/buildinfo"
	"github.com/matzehuels/stackaudit/pkg/config"
	"github.com/matzehuels/stackaudit/pkg/pipeline"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	logOut     io.Writer
	configPath string
	verbose    bool
	cfg        *config.Config

	// loadConfig is swapped in tests.
	loadConfig func(path string) (*config.Config, error)
}

// New creates a CLI logging to w at level until the configuration is read.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
		logOut:     w,
		loadConfig: config.Load,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "stackaudit",
		Short:             "Stackaudit audits Python dependency trees",
		Long:              `Stackaudit resolves the full dependency tree of Python packages, scans every pinned version for known vulnerabilities, checks licenses and maintenance, and approves or rejects each package against a policy.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/stackaudit/config.toml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.analyzeCommand())
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.scanCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.reportsCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the configuration and rebuilds the logger from it.
func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	w := c.logOut
	if w == nil {
		w = os.Stderr
	}
	c.Logger = cfg.NewLogger(w)
	if c.verbose {
		c.SetLogLevel(LogDebug)
	}
	return nil
}

// config returns the loaded configuration, falling back to defaults for
// commands run without the root pre-run.
func (c *CLI) config() *config.Config {
	if c.cfg == nil {
		c.cfg = config.Default()
	}
	return c.cfg
}

// newRunner wires a pipeline runner from cfg. The returned function
// releases its cache and database clients.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, wo pipeline.WireOptions) (*pipeline.Runner, func() error, error) {
	return pipeline.FromConfig(ctx, cfg, c.Logger, wo)
}
