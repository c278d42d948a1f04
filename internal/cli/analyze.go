package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackaudit/pkg/config"
	"github.com/matzehuels/stackaudit/pkg/deps/python"
	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/pipeline"
	"github.com/matzehuels/stackaudit/pkg/report"
)

// analyzeOpts holds the flags of the analyze command.
type analyzeOpts struct {
	file       string
	output     string
	format     string
	graph      string
	policy     string
	noCache    bool
	refresh    bool
	archive    bool
	skipLatest bool
	quiet      bool
}

// analyzeCommand creates the analyze command.
func (c *CLI) analyzeCommand() *cobra.Command {
	var opts analyzeOpts

	cmd := &cobra.Command{
		Use:   "analyze [package...]",
		Short: "Audit packages and their dependency trees",
		Long: `Analyze resolves each package's dependency tree, scans every pinned version
against OSV, enriches packages with license and repository metadata, and
evaluates them against the approval policy.

Packages are given as arguments ("flask", "requests==2.31.0") or read from a
requirements.txt or poetry.lock with --file.`,
		Example: `  stackaudit analyze flask requests==2.31.0
  stackaudit analyze -f requirements.txt -o audit.yaml --graph audit.svg
  stackaudit analyze django --archive --no-cache`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := collectSpecs(args, opts.file)
			if err != nil {
				return err
			}
			return c.runAnalyze(cmd, specs, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read packages from a requirements.txt or poetry.lock")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "report file (default: from config)")
	cmd.Flags().StringVar(&opts.format, "format", "", "report format: json or yaml (default: from file extension)")
	cmd.Flags().StringVar(&opts.graph, "graph", "", "also write the dependency graph (.dot or .svg)")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "policy name recorded in the report")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the response cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached responses but update the cache")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "also archive the run in the report store")
	cmd.Flags().BoolVar(&opts.skipLatest, "skip-latest", false, "do not look up latest versions")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "print only the summary")

	return cmd
}

func (c *CLI) runAnalyze(cmd *cobra.Command, specs []string, opts analyzeOpts) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := analyzeConfig(c.config(), opts)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := pipeline.Sinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()
	if opts.graph != "" {
		sinks = append(sinks, report.NewGraphSink(opts.graph, ""))
	}

	runner, closeRunner, err := c.newRunner(ctx, cfg, pipeline.WireOptions{Refresh: opts.refresh, Sinks: sinks})
	if err != nil {
		return err
	}
	defer closeRunner()

	policy := cfg.Policy()
	runOpts := pipeline.Options{
		Packages:   specs,
		Policy:     &policy,
		SkipLatest: opts.skipLatest,
	}

	spinner := newSpinner(ctx, cmd.ErrOrStderr(), fmt.Sprintf("Auditing %d package(s)...", len(specs)))
	spinner.Start()
	prog := newProgress(c.Logger)
	result, err := runner.Execute(ctx, runOpts)
	spinner.Stop()
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Audited %d packages", result.Stats.Packages), "run", result.Report.RunID)

	printAnalysis(out, result, opts.quiet)
	return nil
}

// analyzeConfig applies the command's flags to a copy of base.
func analyzeConfig(base *config.Config, opts analyzeOpts) (*config.Config, error) {
	cfg := *base

	if opts.output != "" {
		cfg.Report.OutputPath = opts.output
		if opts.format == "" {
			cfg.Report.Format = string(report.FormatFromPath(opts.output))
		}
	}
	if opts.format != "" {
		f, err := report.ParseFormat(opts.format)
		if err != nil {
			return nil, err
		}
		cfg.Report.Format = string(f)
	}
	if opts.noCache {
		cfg.Cache.Enabled = false
	}
	if opts.archive && cfg.Report.ArchiveDir == "" {
		dir, err := report.DefaultStoreDir()
		if err != nil {
			return nil, err
		}
		cfg.Report.ArchiveDir = dir
	}
	if opts.policy != "" {
		cfg.Approval.Name = opts.policy
	}
	return &cfg, cfg.Validate()
}

// printAnalysis prints the outcome of a run.
func printAnalysis(w io.Writer, result *pipeline.Result, quiet bool) {
	r := result.Report
	if !quiet && len(r.Packages) > 0 {
		fmt.Fprintln(w, packageTable(r.Packages))
		fmt.Fprintln(w)
	}
	printSummary(w, r)
	fmt.Fprintln(w)

	printWarnings(w, r.Warnings)
	if result.PersistErr != nil {
		printError(w, "Saving report failed: %v", result.PersistErr)
	}
	if result.Location != "" {
		printSuccess(w, "Report written")
		printFile(w, result.Location)
	}
	if r.Summary.Rejected > 0 && result.Location != "" {
		printDetail(w, "Inspect rejections with: stackaudit browse %s", result.Location)
	}
}

// collectSpecs merges package arguments with the specs read from file.
func collectSpecs(args []string, file string) ([]string, error) {
	specs := append([]string(nil), args...)
	if file != "" {
		fromFile, err := python.ReadSpecs(file)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", file)
		}
		specs = append(specs, fromFile...)
	}
	if len(specs) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no packages given; pass package names or --file")
	}
	return specs, nil
}
