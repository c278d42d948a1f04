package cli

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/report"
)

// browseCommand creates the browse command.
func (c *CLI) browseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse [run-id | report-file]",
		Short: "Explore a run interactively",
		Long: `Browse opens an archived run, or a report file written by analyze, in an
interactive table. Without an argument the most recent archived run is shown.`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			ids, _ := c.completeRunIDs(cmd, args, toComplete)
			return ids, cobra.ShellCompDirectiveDefault
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			r, err := c.loadReport(cmd.Context(), ref)
			if err != nil {
				return err
			}

			p := tea.NewProgram(NewReportModel(r),
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
				tea.WithAltScreen(),
			)
			_, err = p.Run()
			return err
		},
	}
}

// loadReport opens ref as a report file if one exists at that path and
// as an archived run ID otherwise. An empty ref picks the newest run.
func (c *CLI) loadReport(ctx context.Context, ref string) (*report.AnalysisResult, error) {
	if ref != "" {
		if f, err := os.Open(ref); err == nil {
			defer f.Close()
			r, err := report.Decode(f, report.FormatFromPath(ref))
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read report %s", ref)
			}
			return r, nil
		}
	}

	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	if ref == "" {
		entries, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, errors.New(errors.ErrCodeReportNotFound, "no archived runs in %s", store.Path())
		}
		ref = entries[0].RunID
	}
	return store.Get(ctx, ref)
}
