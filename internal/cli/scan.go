package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/pipeline"
	"github.com/matzehuels/stackaudit/pkg/report"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// noSinks keeps FromConfig from opening the configured report sinks for
// commands that never persist a run.
var noSinks = []report.Sink{}

// scanCommand creates the scan command.
func (c *CLI) scanCommand() *cobra.Command {
	var (
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "scan [name==version...]",
		Short: "Scan pinned requirements for known vulnerabilities",
		Long: `Scan queries OSV for every exact "name==version" pin given as arguments or
read from a requirements file ("-" reads standard input). Dependencies are
not resolved; use analyze for a full audit.`,
		Example: `  stackaudit scan jinja2==2.4.1 urllib3==1.26.0
  stackaudit scan -f requirements.lock --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := requirementsText(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			reqs, malformed := vuln.ParseRequirements(text)
			for _, line := range malformed {
				c.Logger.Warn("Skipping requirement without an exact pin", "line", line)
			}
			if len(reqs) == 0 {
				return errors.New(errors.ErrCodeInvalidInput, "no pinned requirements to scan")
			}

			ctx := cmd.Context()
			runner, closeRunner, err := c.newRunner(ctx, c.config(), pipeline.WireOptions{Sinks: noSinks})
			if err != nil {
				return err
			}
			defer closeRunner()

			prog := newProgress(c.Logger)
			results, err := runner.Scanner.Scan(ctx, text)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Scanned %d packages", len(reqs)), "vulnerabilities", vuln.Count(results))

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			printScan(out, results, len(reqs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `requirements file with exact pins ("-" for stdin)`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")

	return cmd
}

// requirementsText joins argument pins with the contents of file.
func requirementsText(args []string, file string, stdin io.Reader) (string, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	if file != "" {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInvalidInput, err, "read requirements")
		}
		b.Write(data)
	}
	return b.String(), nil
}

// printScan prints one row per vulnerability, most severe first.
func printScan(w io.Writer, results map[string][]vuln.Record, scanned int) {
	var (
		records  []vuln.Record
		affected int
	)
	for _, recs := range results {
		if len(recs) > 0 {
			affected++
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		printSuccess(w, "No known vulnerabilities in %d packages", scanned)
		return
	}
	slices.SortFunc(records, func(a, b vuln.Record) int {
		if d := b.Severity.Rank() - a.Severity.Rank(); d != 0 {
			return d
		}
		if c := strings.Compare(a.Key(), b.Key()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	rows := make([][]string, len(records))
	for i, r := range records {
		fixed := r.FixedIn
		if fixed == "" {
			fixed = "-"
		}
		rows[i] = []string{r.Package, r.Version, r.ID, string(r.Severity), fixed, truncate(r.Title, 60)}
	}
	fmt.Fprintln(w, table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("Package", "Version", "ID", "Severity", "Fixed", "Title").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if col == 3 && row >= 0 && row < len(records) && records[row].Severity.Rank() >= vuln.SeverityHigh.Rank() {
				return StyleError
			}
			return lipgloss.NewStyle()
		}).
		Render())
	printWarning(w, "%d vulnerabilities in %d of %d packages", len(records), affected, scanned)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
