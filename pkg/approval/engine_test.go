package approval

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/stackaudit/pkg/clock"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/license"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

var now = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

func testEngine(p Policy) *Engine {
	return New(p, license.NewValidator(), clock.Fixed(now))
}

func raw(name, version string, deps ...graph.RawNode) graph.RawNode {
	return graph.RawNode{Name: name, Version: version, Dependencies: deps}
}

// healthy gives every package a recognized license, a homepage and a
// recent upload so that only what a test changes can reject it.
func healthy(t *testing.T, trees ...graph.RawNode) *graph.Graph {
	t.Helper()
	g, err := graph.Build(trees)
	if err != nil {
		t.Fatal(err)
	}
	recent := now.AddDate(0, -1, 0)
	for _, id := range g.IDs() {
		g.Update(id, func(p *graph.Package) {
			p.License = &graph.License{Name: "MIT", Type: "MIT", Recognized: true}
			p.HomePage = "https://example.com/" + id.Name
			p.UploadTime = &recent
		})
	}
	return g
}

func approvalOf(t *testing.T, g *graph.Graph, name, version string) graph.Approval {
	t.Helper()
	p, ok := g.Find(graph.PackageID{Name: name, Version: version})
	if !ok {
		t.Fatalf("%s@%s not in graph", name, version)
	}
	return p.Approval
}

func TestEvaluateUnmaintainedDependency(t *testing.T) {
	g := healthy(t, raw("ipython", "9.7.0", raw("colorama", "0.4.6")))
	old := now.AddDate(-3, 0, 0)
	g.Update(graph.PackageID{Name: "colorama", Version: "0.4.6"}, func(p *graph.Package) { p.UploadTime = &old })

	stats := testEngine(DefaultPolicy()).Evaluate(g, nil)

	colorama := approvalOf(t, g, "colorama", "0.4.6")
	if colorama.Status != graph.StatusRejected || !strings.Contains(colorama.Reason, ReasonUnmaintained) {
		t.Errorf("colorama = %+v, want rejected as unmaintained", colorama)
	}
	ipython := approvalOf(t, g, "ipython", "9.7.0")
	if ipython.Status != graph.StatusRejected || !strings.Contains(ipython.Reason, ReasonRejectedDeps) {
		t.Errorf("ipython = %+v, want rejected for dependencies", ipython)
	}
	if !reflect.DeepEqual(ipython.Rejected, []string{"colorama"}) {
		t.Errorf("ipython rejected deps = %v, want [colorama]", ipython.Rejected)
	}
	if stats != (Stats{Rejected: 2, Propagated: 1}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEvaluateMissingLicense(t *testing.T) {
	g := healthy(t, raw("pkg", "1.0"))
	g.Update(graph.PackageID{Name: "pkg", Version: "1.0"}, func(p *graph.Package) { p.License = nil })

	testEngine(DefaultPolicy()).Evaluate(g, nil)

	a := approvalOf(t, g, "pkg", "1.0")
	if a.Status != graph.StatusRejected || a.Reason != ReasonMissingLicense {
		t.Errorf("approval = %+v, want rejected with %q", a, ReasonMissingLicense)
	}
}

func TestEvaluateVulnerable(t *testing.T) {
	g := healthy(t, raw("requests", "2.28.0"))
	vulns := map[string][]vuln.Record{
		"requests@2.28.0": {{ID: "GHSA-1", Severity: vuln.SeverityMedium, Package: "requests", Version: "2.28.0"}},
		"requests@2.31.0": {{ID: "GHSA-2"}, {ID: "GHSA-3"}},
	}
	testEngine(DefaultPolicy()).Evaluate(g, vulns)

	a := approvalOf(t, g, "requests", "2.28.0")
	if a.Status != graph.StatusRejected || a.Reason != "contains 1 vulnerability" {
		t.Errorf("approval = %+v", a)
	}
}

func TestEvaluateVulnerabilityCountAndTolerance(t *testing.T) {
	records := []vuln.Record{
		{ID: "a", Severity: vuln.SeverityLow},
		{ID: "b", Severity: vuln.SeverityHigh},
		{ID: "c", Severity: vuln.SeverityCritical},
	}
	tests := []struct {
		max    vuln.Severity
		status graph.Status
		reason string
	}{
		{"", graph.StatusRejected, "contains 3 vulnerabilities"},
		{vuln.SeverityMedium, graph.StatusRejected, "contains 2 vulnerabilities"},
		{vuln.SeverityCritical, graph.StatusApproved, ""},
	}
	for _, tt := range tests {
		g := healthy(t, raw("x", "1"))
		testEngine(Policy{MaintainabilityYears: 2, MaxSeverity: tt.max}).Evaluate(g, map[string][]vuln.Record{"x@1": records})
		a := approvalOf(t, g, "x", "1")
		if a.Status != tt.status || a.Reason != tt.reason {
			t.Errorf("max=%q: approval = %q %q, want %q %q", tt.max, a.Status, a.Reason, tt.status, tt.reason)
		}
	}
}

func TestEvaluateChainPropagatesFullDepth(t *testing.T) {
	g := healthy(t, raw("a", "1", raw("b", "1", raw("c", "1"))))
	g.Update(graph.PackageID{Name: "c", Version: "1"}, func(p *graph.Package) { p.License = nil })

	stats := testEngine(DefaultPolicy()).Evaluate(g, nil)

	b := approvalOf(t, g, "b", "1")
	if b.Status != graph.StatusRejected || !reflect.DeepEqual(b.Rejected, []string{"c"}) {
		t.Errorf("b = %+v, want rejected with [c]", b)
	}
	a := approvalOf(t, g, "a", "1")
	if a.Status != graph.StatusRejected || !reflect.DeepEqual(a.Rejected, []string{"b", "c"}) {
		t.Errorf("a = %+v, want rejected with [b c]", a)
	}
	if stats.Propagated != 2 || stats.Rejected != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEvaluateCycle(t *testing.T) {
	t.Run("approved", func(t *testing.T) {
		g := healthy(t, raw("a", "1", raw("b", "1", raw("a", "1"))))
		stats := testEngine(DefaultPolicy()).Evaluate(g, nil)
		if stats.Approved != 2 {
			t.Errorf("stats = %+v, want both approved", stats)
		}
		a := approvalOf(t, g, "a", "1")
		if !reflect.DeepEqual(a.Direct, []graph.DependencyInfo{{Name: "b", Version: "1"}}) || len(a.Transitive) != 0 {
			t.Errorf("a direct = %v transitive = %v", a.Direct, a.Transitive)
		}
	})

	t.Run("rejected member", func(t *testing.T) {
		g := healthy(t, raw("a", "1", raw("b", "1", raw("a", "1"))))
		g.Update(graph.PackageID{Name: "b", Version: "1"}, func(p *graph.Package) { p.UploadTime = nil })
		testEngine(DefaultPolicy()).Evaluate(g, nil)

		a := approvalOf(t, g, "a", "1")
		if a.Status != graph.StatusRejected || !reflect.DeepEqual(a.Rejected, []string{"b"}) {
			t.Errorf("a = %+v", a)
		}
		b := approvalOf(t, g, "b", "1")
		want := ReasonUnmaintained + ", " + WarningNoUploadDate
		if b.Status != graph.StatusRejected || b.Reason != want {
			t.Errorf("b reason = %q, want %q", b.Reason, want)
		}
	})
}

func TestEvaluateIdempotent(t *testing.T) {
	g := healthy(t, raw("a", "1", raw("b", "1", raw("c", "1")), raw("d", "1")))
	g.Update(graph.PackageID{Name: "c", Version: "1"}, func(p *graph.Package) { p.License.Rejected = true })
	e := testEngine(DefaultPolicy())

	first := e.Evaluate(g, nil)
	before := g.Packages()
	second := e.Evaluate(g, nil)
	if first != second {
		t.Errorf("stats changed: %+v then %+v", first, second)
	}
	if !reflect.DeepEqual(before, g.Packages()) {
		t.Error("second evaluation changed package approvals")
	}
}

func TestEvaluateWarningsOnApproved(t *testing.T) {
	g := healthy(t, raw("a", "1"))
	g.Update(graph.PackageID{Name: "a", Version: "1"}, func(p *graph.Package) { p.HomePage = "" })
	testEngine(DefaultPolicy()).Evaluate(g, nil)

	a := approvalOf(t, g, "a", "1")
	if a.Status != graph.StatusApproved || a.Reason != WarningNoProjectURL {
		t.Errorf("approval = %+v, want approved with warning", a)
	}
}

func TestEvaluateLicenseReasons(t *testing.T) {
	tests := []struct {
		name    string
		license *graph.License
		want    string
	}{
		{"blank name", &graph.License{Name: "  "}, ReasonMissingLicense},
		{"unrecognized", &graph.License{Name: "Custom Terms", Source: graph.LicenseSourceRaw}, ReasonInvalidLicense},
		{"blocked", &graph.License{Name: "GPLv3", Type: "GPL-3.0", Recognized: true, Rejected: true}, ReasonBlockedLicense},
		{"unrecognized and blocked", &graph.License{Name: "Custom Terms", Rejected: true}, ReasonInvalidLicense + ", " + ReasonBlockedLicense},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := healthy(t, raw("a", "1"))
			g.Update(graph.PackageID{Name: "a", Version: "1"}, func(p *graph.Package) { p.License = tt.license })
			testEngine(DefaultPolicy()).Evaluate(g, nil)
			if a := approvalOf(t, g, "a", "1"); a.Reason != tt.want {
				t.Errorf("reason = %q, want %q", a.Reason, tt.want)
			}
		})
	}
}

func TestEvaluatePackagePending(t *testing.T) {
	e := testEngine(DefaultPolicy())
	a := e.EvaluatePackage(graph.New(), graph.Package{ID: graph.PackageID{Name: "x"}}, nil)
	if a.Status != graph.StatusPending || a.Reason != ReasonIncomplete {
		t.Errorf("approval = %+v, want pending", a)
	}
	if a.Direct == nil || a.Transitive == nil || a.Rejected == nil {
		t.Error("lists should be empty, not nil")
	}
}

func TestSplitDependencies(t *testing.T) {
	g, _ := graph.Build([]graph.RawNode{
		raw("app", "1",
			raw("requests", "2", raw("urllib3", "2")),
			raw("pytest", "8", raw("pluggy", "1")),
			raw("urllib3", "2"),
		),
	})
	p, _ := g.Find(graph.PackageID{Name: "app", Version: "1"})
	p.RequiresDist = []string{
		"requests>=2",
		"pytest>=7; extra == 'test'",
		"urllib3[socks]; extra == \"socks\"",
		"urllib3<3",
	}

	direct, transitive := SplitDependencies(g, p)
	names := func(ds []graph.DependencyInfo) []string {
		var out []string
		for _, d := range ds {
			out = append(out, d.Name)
		}
		return out
	}
	if got := names(direct); !reflect.DeepEqual(got, []string{"requests", "urllib3"}) {
		t.Errorf("direct = %v", got)
	}
	if got := names(transitive); !reflect.DeepEqual(got, []string{"pytest", "pluggy"}) {
		t.Errorf("transitive = %v", got)
	}
}

func TestJoinReasons(t *testing.T) {
	got := joinReasons([]string{"unmaintained", "", "Unmaintained", "no upload date", " unmaintained "})
	if got != "unmaintained, no upload date" {
		t.Errorf("joinReasons = %q", got)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		reason, want string
	}{
		{"", ""},
		{"contains 1 vulnerability", ReasonVulnerable},
		{"contains 3 vulnerabilities, unmaintained", ReasonVulnerable},
		{ReasonUnmaintained + ", " + ReasonRejectedDeps, ReasonUnmaintained},
		{WarningNoProjectURL, WarningNoProjectURL},
	}
	for _, tt := range tests {
		if got := Category(tt.reason); got != tt.want {
			t.Errorf("Category(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
