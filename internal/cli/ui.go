package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/report"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - approved
	colorYellow = lipgloss.Color("220") // Amber - warnings, pending
	colorRed    = lipgloss.Color("167") // Soft red - rejected
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleNumber for numeric values.
	StyleNumber = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	// StyleError for rejections and failures.
	StyleError = lipgloss.NewStyle().Foreground(colorRed)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleHeader = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	styleBorder = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints a file output line.
func printFile(w io.Writer, path string) {
	fmt.Fprintln(w, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(w io.Writer, key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(14)
	fmt.Fprintln(w, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

// =============================================================================
// Reports
// =============================================================================

// statusStyle colors a package status.
func statusStyle(s graph.Status) lipgloss.Style {
	switch s {
	case graph.StatusApproved:
		return StyleSuccess
	case graph.StatusRejected:
		return StyleError
	default:
		return StyleWarning
	}
}

// printSummary prints the headline counts of a run.
func printSummary(w io.Writer, r *report.AnalysisResult) {
	s := r.Summary
	fmt.Fprintln(w, StyleTitle.Render("Run "+r.RunID))
	printKeyValue(w, "Policy", s.Policy)
	printKeyValue(w, "Packages", strconv.Itoa(s.TotalPackages))
	printKeyValue(w, "Approved", StyleSuccess.Render(strconv.Itoa(s.Approved)))
	printKeyValue(w, "Rejected", StyleError.Render(strconv.Itoa(s.Rejected)))
	printKeyValue(w, "Pending", StyleWarning.Render(strconv.Itoa(s.Pending)))
	printKeyValue(w, "Vulnerable", strconv.Itoa(s.TotalVulnerabilities))
	printKeyValue(w, "Maintained", strconv.Itoa(s.Maintained))
	printKeyValue(w, "Outdated", strconv.Itoa(s.Outdated))
}

// packageTable renders one row per package.
func packageTable(pkgs []report.PackageReport) string {
	rows := make([][]string, 0, len(pkgs))
	for _, p := range pkgs {
		latest := p.LatestVersion
		if p.Outdated {
			latest += " *"
		}
		license := "-"
		if p.License != nil && p.License.Name != "" {
			license = p.License.Name
		}
		rows = append(rows, []string{
			p.Name, p.Version, string(p.Status), license,
			strconv.Itoa(p.Vulnerabilities), latest, p.Reason,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("Package", "Version", "Status", "License", "Vulns", "Latest", "Reason").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if col == 2 && row >= 0 && row < len(pkgs) {
				return statusStyle(pkgs[row].Status)
			}
			if col == 6 {
				return StyleDim
			}
			return lipgloss.NewStyle()
		}).
		Render()
}

// printWarnings lists degraded stages of a run.
func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		printWarning(w, "%s", msg)
	}
}
