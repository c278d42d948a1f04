package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/pipeline"
)

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		file    string
		output  string
		refresh bool
		reqs    bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [package...]",
		Short: "Resolve dependency trees and print the graph",
		Long: `Resolve builds the dependency graph for the given packages without scanning
or approving anything. The graph is printed as JSON, or as pinned
requirements with --requirements.`,
		Example: `  stackaudit resolve flask
  stackaudit resolve -f requirements.txt -o graph.json
  stackaudit resolve fastapi --requirements | stackaudit scan -f -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := collectSpecs(args, file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			runner, closeRunner, err := c.newRunner(ctx, c.config(), pipeline.WireOptions{Refresh: refresh, Sinks: noSinks})
			if err != nil {
				return err
			}
			defer closeRunner()

			prog := newProgress(c.Logger)
			g, err := runner.Resolver.Resolve(ctx, specs)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Resolved %d packages", g.Len()), "edges", g.EdgeCount())

			switch {
			case output != "":
				if err := graph.WriteFile(g, output); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Graph written")
				printFile(cmd.OutOrStdout(), output)
			case reqs:
				fmt.Fprint(cmd.OutOrStdout(), g.Requirements())
			default:
				return graph.WriteJSON(g, cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read packages from a requirements.txt or poetry.lock")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the graph JSON to a file")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass cached trees but update the cache")
	cmd.Flags().BoolVar(&reqs, "requirements", false, "print pinned requirements instead of JSON")

	return cmd
}
