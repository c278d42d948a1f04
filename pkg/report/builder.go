package report

import (
	"maps"
	"slices"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/stackaudit/pkg/approval"
	"github.com/matzehuels/stackaudit/pkg/clock"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// Input is everything a report is built from.
type Input struct {
	RunID           string
	Requested       []string
	Graph           *graph.Graph
	Vulnerabilities map[string][]vuln.Record
	Maintained      []graph.Package
	Policy          approval.Policy
	DependencyMap   map[string][]string
	Warnings        []string
}

// Builder creates AnalysisResults.
type Builder struct {
	clock clock.Clock
}

// NewBuilder returns a Builder stamping reports with clk (nil uses the
// system clock).
func NewBuilder(clk clock.Clock) *Builder {
	return &Builder{clock: clock.OrSystem(clk)}
}

// Build assembles the report. It does not modify its input.
func (b *Builder) Build(in Input) *AnalysisResult {
	res := &AnalysisResult{
		RunID:            in.RunID,
		Timestamp:        b.clock.Now(),
		Requested:        slices.Clone(in.Requested),
		Vulnerabilities:  cloneVulns(in.Vulnerabilities),
		FilteredPackages: []string{},
		Policy:           in.Policy,
		DependencyMap:    cloneDepMap(in.DependencyMap),
		Warnings:         slices.Clone(in.Warnings),
	}

	if in.Graph != nil {
		for _, p := range in.Graph.Packages() {
			pr := packageReport(p, len(in.Vulnerabilities[p.ID.String()]))
			res.Packages = append(res.Packages, pr)
			switch pr.Status {
			case graph.StatusApproved:
				res.Summary.Approved++
			case graph.StatusRejected:
				res.Summary.Rejected++
			default:
				res.Summary.Pending++
			}
			if pr.Outdated {
				res.Summary.Outdated++
			}
		}
	}
	if res.Packages == nil {
		res.Packages = []PackageReport{}
	}

	for _, p := range in.Maintained {
		res.FilteredPackages = append(res.FilteredPackages, p.ID.Requirement())
	}
	slices.Sort(res.FilteredPackages)
	res.FilteredPackages = slices.Compact(res.FilteredPackages)

	res.Summary.TotalPackages = len(res.Packages)
	res.Summary.TotalVulnerabilities = vuln.Count(res.Vulnerabilities)
	res.Summary.Maintained = len(res.FilteredPackages)
	res.Summary.Policy = in.Policy.Name
	return res
}

func packageReport(p graph.Package, vulns int) PackageReport {
	a := p.Approval
	status := a.Status
	if status == "" {
		status = graph.StatusPending
	}
	pr := PackageReport{
		Name:            p.ID.Name,
		Version:         p.ID.Version,
		PURL:            PURL(p.ID),
		Status:          status,
		Reason:          a.Reason,
		License:         cloneLicense(p.License),
		Summary:         p.Summary,
		HomePage:        p.HomePage,
		RepoURL:         p.RepoURL,
		LatestVersion:   p.LatestVersion,
		Outdated:        Outdated(p.ID.Version, p.LatestVersion),
		Vulnerabilities: vulns,
		Direct:          nonNil(slices.Clone(a.Direct)),
		Transitive:      nonNil(slices.Clone(a.Transitive)),
		Rejected:        nonNil(slices.Clone(a.Rejected)),
	}
	if p.UploadTime != nil {
		t := *p.UploadTime
		pr.UploadTime = &t
	}
	return pr
}

// PURL returns the package URL of a PyPI package, e.g.
// "pkg:pypi/flask@2.3.3".
func PURL(id graph.PackageID) string {
	return packageurl.NewPackageURL(packageurl.TypePyPi, "", id.Name, id.Version, nil, "").ToString()
}

func cloneLicense(l *graph.License) *graph.License {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func cloneVulns(in map[string][]vuln.Record) map[string][]vuln.Record {
	out := make(map[string][]vuln.Record, len(in))
	for k, rs := range in {
		out[k] = slices.Clone(rs)
	}
	return out
}

func cloneDepMap(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for _, k := range slices.Sorted(maps.Keys(in)) {
		out[k] = nonNil(slices.Clone(in[k]))
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
