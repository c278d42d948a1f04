package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/report"
)

var (
	listDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	listLabelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(12)
)

// statusFilters is the cycle order of the tab key; "" shows everything.
var statusFilters = []graph.Status{"", graph.StatusRejected, graph.StatusPending, graph.StatusApproved}

// =============================================================================
// ReportModel - Interactive run browser
// =============================================================================

// ReportModel is the bubbletea model for browsing the packages of a run.
type ReportModel struct {
	Report  *report.AnalysisResult
	Visible []report.PackageReport
	Filter  int
	Cursor  int
	Offset  int
	Height  int
	Detail  bool
}

// NewReportModel creates a browser over r.
func NewReportModel(r *report.AnalysisResult) ReportModel {
	m := ReportModel{Report: r, Height: 15}
	m.applyFilter()
	return m
}

func (m *ReportModel) applyFilter() {
	want := statusFilters[m.Filter]
	m.Visible = m.Visible[:0]
	for _, p := range m.Report.Packages {
		if want == "" || p.Status == want {
			m.Visible = append(m.Visible, p)
		}
	}
	m.Cursor, m.Offset = 0, 0
}

// Selected returns the package under the cursor.
func (m ReportModel) Selected() (report.PackageReport, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Visible) {
		return report.PackageReport{}, false
	}
	return m.Visible[m.Cursor], true
}

func (m ReportModel) Init() tea.Cmd {
	return nil
}

func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.Detail {
				m.Detail = false
				return m, nil
			}
			return m, tea.Quit
		case "up", "k":
			if !m.Detail && m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if !m.Detail && m.Cursor < len(m.Visible)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "tab":
			if !m.Detail {
				m.Visible = append([]report.PackageReport(nil), m.Visible...)
				m.Filter = (m.Filter + 1) % len(statusFilters)
				m.applyFilter()
			}
		case "enter":
			if _, ok := m.Selected(); ok {
				m.Detail = !m.Detail
			}
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m ReportModel) View() string {
	if m.Detail {
		if p, ok := m.Selected(); ok {
			return m.detailView(p)
		}
	}
	return m.listView()
}

func (m ReportModel) listView() string {
	var b strings.Builder

	filter := "all"
	if f := statusFilters[m.Filter]; f != "" {
		filter = string(f)
	}
	s := m.Report.Summary
	b.WriteString(StyleTitle.Render("Run " + m.Report.RunID))
	b.WriteString("  ")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("%d approved · %d rejected · %d pending · showing %s",
		s.Approved, s.Rejected, s.Pending, filter)))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ details  tab filter  q quit"))
	b.WriteString("\n\n")

	if len(m.Visible) == 0 {
		b.WriteString(listDimStyle.Render("  no packages"))
		b.WriteString("\n")
		return b.String()
	}

	end := min(m.Offset+m.Height, len(m.Visible))
	rows := make([][]string, 0, end-m.Offset)
	for i := m.Offset; i < end; i++ {
		p := m.Visible[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, p.Name, p.Version, string(p.Status), fmt.Sprint(p.Vulnerabilities), p.Reason})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("", "Package", "Version", "Status", "Vulns", "Reason").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			idx := m.Offset + row
			if idx >= len(m.Visible) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if idx == m.Cursor {
				base = base.Bold(true)
			}
			switch col {
			case 3:
				return base.Inherit(statusStyle(m.Visible[idx].Status))
			case 5:
				return base.Foreground(colorDim)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Visible))))
	return b.String()
}

func (m ReportModel) detailView(p report.PackageReport) string {
	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			value = "-"
		}
		b.WriteString(listLabelStyle.Render(label) + " " + value + "\n")
	}

	b.WriteString(StyleTitle.Render(p.Name + " " + p.Version))
	b.WriteString("  ")
	b.WriteString(statusStyle(p.Status).Render(string(p.Status)))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("esc back  q quit"))
	b.WriteString("\n\n")

	line("Reason", p.Reason)
	if p.License != nil {
		lic := p.License.Name
		if p.License.Rejected {
			lic += " " + StyleError.Render("(blocked)")
		} else if !p.License.Recognized {
			lic += " " + StyleWarning.Render("(unrecognized)")
		}
		line("License", lic)
	} else {
		line("License", "")
	}
	latest := p.LatestVersion
	if p.Outdated {
		latest += " " + StyleWarning.Render("(outdated)")
	}
	line("Latest", latest)
	if p.UploadTime != nil {
		line("Released", p.UploadTime.Format("2006-01-02"))
	}
	line("Repository", p.RepoURL)
	line("PURL", p.PURL)
	line("Direct", joinDeps(p.Direct))
	line("Transitive", fmt.Sprintf("%d packages", len(p.Transitive)))
	if len(p.Rejected) > 0 {
		line("Rejected", StyleError.Render(strings.Join(p.Rejected, ", ")))
	}

	if vulns := m.Report.Vulnerabilities[p.Name+"@"+p.Version]; len(vulns) > 0 {
		b.WriteString("\n")
		b.WriteString(StyleTitle.Render("Vulnerabilities"))
		b.WriteString("\n")
		for _, v := range vulns {
			fixed := ""
			if v.FixedIn != "" {
				fixed = listDimStyle.Render(" fixed in " + v.FixedIn)
			}
			b.WriteString(fmt.Sprintf("  %s %s %s%s\n", StyleError.Render(string(v.Severity)), v.ID, truncate(v.Title, 60), fixed))
		}
	}
	return b.String()
}

func joinDeps(ds []graph.DependencyInfo) string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.ID().Requirement()
	}
	return strings.Join(names, ", ")
}
