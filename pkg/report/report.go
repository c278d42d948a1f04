package report

import (
	"time"

	"github.com/matzehuels/stackaudit/pkg/approval"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// AnalysisResult is the consolidated output of one run.
type AnalysisResult struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Requested []string  `json:"requested,omitempty"`

	// Vulnerabilities are keyed by "name@version".
	Vulnerabilities map[string][]vuln.Record `json:"vulnerabilities"`
	Packages        []PackageReport          `json:"packages"`

	// FilteredPackages are the maintained packages as "name==version".
	FilteredPackages []string            `json:"filtered_packages"`
	Policy           approval.Policy     `json:"policy"`
	Summary          Summary             `json:"summary"`
	DependencyMap    map[string][]string `json:"dependency_map"`
	Warnings         []string            `json:"warnings,omitempty"`
}

// PackageReport is the per-package view of a run.
type PackageReport struct {
	Name            string                 `json:"name"`
	Version         string                 `json:"version"`
	PURL            string                 `json:"purl"`
	Status          graph.Status           `json:"status"`
	Reason          string                 `json:"reason,omitempty"`
	License         *graph.License         `json:"license,omitempty"`
	UploadTime      *time.Time             `json:"upload_time,omitempty"`
	Summary         string                 `json:"summary,omitempty"`
	HomePage        string                 `json:"home_page,omitempty"`
	RepoURL         string                 `json:"repo_url,omitempty"`
	LatestVersion   string                 `json:"latest_version,omitempty"`
	Outdated        bool                   `json:"outdated"`
	Vulnerabilities int                    `json:"vulnerabilities"`
	Direct          []graph.DependencyInfo `json:"direct_dependencies"`
	Transitive      []graph.DependencyInfo `json:"transitive_dependencies"`
	Rejected        []string               `json:"rejected_dependencies"`
}

// ID returns the package identity.
func (p PackageReport) ID() graph.PackageID {
	return graph.PackageID{Name: p.Name, Version: p.Version}
}

// Summary holds the headline counts of a run.
type Summary struct {
	TotalPackages        int    `json:"total_packages"`
	TotalVulnerabilities int    `json:"total_vulnerabilities"`
	Maintained           int    `json:"maintained"`
	Approved             int    `json:"approved"`
	Rejected             int    `json:"rejected"`
	Pending              int    `json:"pending"`
	Outdated             int    `json:"outdated"`
	Policy               string `json:"policy"`
}

// Package returns the report for name, preferring an exact version match
// when version is non-empty.
func (r *AnalysisResult) Package(name, version string) (PackageReport, bool) {
	name = graph.NormalizeName(name)
	for _, p := range r.Packages {
		if p.Name == name && (version == "" || p.Version == version) {
			return p, true
		}
	}
	return PackageReport{}, false
}
