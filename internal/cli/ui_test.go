package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/stackaudit/pkg/pipeline"
	"github.com/matzehuels/stackaudit/pkg/report"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

func TestPackageTable(t *testing.T) {
	r := browseResult()
	r.Packages[1].LatestVersion = "3.0.0"
	r.Packages[1].Outdated = true

	out := packageTable(r.Packages)
	for _, want := range []string{"Package", "click", "werkzeug", "BSD-3-Clause", "3.0.0 *", "vulnerable"} {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
}

func TestPrintAnalysis(t *testing.T) {
	result := &pipeline.Result{
		Report:     browseResult(),
		Location:   "/tmp/analysis_result.json",
		PersistErr: errors.New("mongo unreachable"),
	}
	result.Report.Warnings = []string{"metadata unavailable for 1 of 4 packages"}

	var buf bytes.Buffer
	printAnalysis(&buf, result, false)
	out := buf.String()
	for _, want := range []string{
		"Run run-1", "werkzeug", "metadata unavailable", "mongo unreachable",
		"/tmp/analysis_result.json", "stackaudit browse /tmp/analysis_result.json",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printAnalysis(&buf, result, true)
	if strings.Contains(buf.String(), "Package") {
		t.Error("quiet output should omit the package table")
	}
}

func TestPrintScan(t *testing.T) {
	var buf bytes.Buffer
	printScan(&buf, map[string][]vuln.Record{}, 3)
	if !strings.Contains(buf.String(), "No known vulnerabilities in 3 packages") {
		t.Errorf("clean output = %q", buf.String())
	}

	buf.Reset()
	printScan(&buf, map[string][]vuln.Record{
		"jinja2@2.4.1": {
			{ID: "PYSEC-low", Package: "jinja2", Version: "2.4.1", Severity: vuln.SeverityLow},
			{ID: "PYSEC-crit", Package: "jinja2", Version: "2.4.1", Severity: vuln.SeverityCritical, FixedIn: "2.10.1"},
		},
		"flask@2.0.0": {},
	}, 2)
	out := buf.String()
	if strings.Index(out, "PYSEC-crit") > strings.Index(out, "PYSEC-low") {
		t.Error("critical findings should be listed first")
	}
	if !strings.Contains(out, "2 vulnerabilities in 1 of 2 packages") {
		t.Errorf("output lacks tally:\n%s", out)
	}
}

func TestEntriesTable(t *testing.T) {
	out := entriesTable([]report.Entry{{
		RunID:     "run-1",
		Timestamp: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
		Requested: []string{"flask", "django"},
		Summary:   report.Summary{TotalPackages: 9, Approved: 7, Rejected: 2},
	}})
	for _, want := range []string{"run-1", "flask django", "Rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate = %q", got)
	}
}
