package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackaudit/pkg/report"
)

// defaultRetention is how long "reports clean" keeps runs by default.
const defaultRetention = 30 * 24 * time.Hour

// reportsCommand creates the reports command.
func (c *CLI) reportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reports",
		Aliases: []string{"report"},
		Short:   "Manage archived runs",
	}

	cmd.AddCommand(c.reportsListCommand())
	cmd.AddCommand(c.reportsShowCommand())
	cmd.AddCommand(c.reportsDeleteCommand())
	cmd.AddCommand(c.reportsCleanCommand())

	return cmd
}

func (c *CLI) openStore() (*report.Store, error) {
	return report.NewStore(c.config().Report.ArchiveDir)
}

func (c *CLI) reportsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				printInfo(out, "No archived runs")
				printDetail(out, "Directory: %s", store.Path())
				return nil
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			fmt.Fprintln(out, entriesTable(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n runs")
	return cmd
}

// entriesTable renders one row per archived run.
func entriesTable(entries []report.Entry) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		s := e.Summary
		rows[i] = []string{
			e.RunID,
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(s.TotalPackages),
			strconv.Itoa(s.Approved),
			strconv.Itoa(s.Rejected),
			strconv.Itoa(s.TotalVulnerabilities),
			truncate(strings.Join(e.Requested, " "), 40),
		}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("Run", "Time", "Pkgs", "OK", "Rejected", "Vulns", "Requested").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return styleHeader
			case col == 3:
				return StyleSuccess
			case col == 4 && row >= 0 && row < len(entries) && entries[row].Summary.Rejected > 0:
				return StyleError
			case col == 6:
				return StyleDim
			}
			return lipgloss.NewStyle()
		}).
		Render()
}

func (c *CLI) reportsShowCommand() *cobra.Command {
	var (
		format  string
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print an archived run",
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return c.completeRunIDs(cmd, args, toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			r, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary {
				fmt.Fprintln(out, packageTable(r.Packages))
				printSummary(out, r)
				printWarnings(out, r.Warnings)
				return nil
			}
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == report.FormatDOT {
				_, err := fmt.Fprint(out, report.ToDOT(r))
				return err
			}
			return report.Encode(out, r, f)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json, yaml or dot")
	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "print tables instead of the raw report")
	return cmd
}

func (c *CLI) reportsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete <run-id>...",
		Short:             "Delete archived runs",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			printSuccess(cmd.OutOrStdout(), "Deleted %d run(s)", len(args))
			return nil
		},
	}
}

func (c *CLI) reportsCleanCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove archived runs older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			n, err := store.Cleanup(cmd.Context(), olderThan, time.Now())
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Removed %d run(s) older than %s", n, olderThan)
			printDetail(cmd.OutOrStdout(), "Directory: %s", store.Path())
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", defaultRetention, "age cutoff")
	return cmd
}
