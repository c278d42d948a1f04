package graph

import (
	"strings"
	"time"
)

// PackageID identifies one vertex: a package at an exact version.
// It is comparable and used as the arena key.
type PackageID struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// String renders "name@version".
func (id PackageID) String() string { return id.Name + "@" + id.Version }

// Requirement renders the pinned requirement "name==version".
func (id PackageID) Requirement() string { return id.Name + "==" + id.Version }

// NewPackageID builds an ID with a normalized name and trimmed version.
func NewPackageID(name, version string) PackageID {
	return PackageID{Name: NormalizeName(name), Version: strings.TrimSpace(version)}
}

// ParseRequirement parses "name==version" or "name@version".
func ParseRequirement(s string) (PackageID, bool) {
	s = strings.TrimSpace(s)
	name, version, ok := strings.Cut(s, "==")
	if !ok {
		name, version, ok = strings.Cut(s, "@")
	}
	if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(version) == "" {
		return PackageID{}, false
	}
	return NewPackageID(name, version), true
}

var nameReplacer = strings.NewReplacer("_", "-", ".", "-")

// NormalizeName applies PEP 503 normalization: lowercase, with runs of
// "_", "." and "-" folded to a single "-".
func NormalizeName(name string) string {
	s := nameReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

// DependencyInfo is one dependency as seen from a dependent package.
type DependencyInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	LatestVersion string `json:"latest_version,omitempty"`
}

// ID returns the dependency's package ID.
func (d DependencyInfo) ID() PackageID { return PackageID{Name: d.Name, Version: d.Version} }

// Status is the approval decision for a package.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPending  Status = "pending"
)

// License sources, in cascade order.
const (
	LicenseSourceField      = "license"
	LicenseSourceExpression = "license_expression"
	LicenseSourceClassifier = "classifier"
	LicenseSourceGitHub     = "github"
	LicenseSourceGitLab     = "gitlab"
	LicenseSourceRaw        = "raw"
)

// License is the resolved license of a package.
type License struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Source     string `json:"source,omitempty"`
	Recognized bool   `json:"recognized"`
	Rejected   bool   `json:"rejected,omitempty"`
}

// Approval is the outcome of the approval engine for one package.
type Approval struct {
	Status     Status           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Direct     []DependencyInfo `json:"direct_dependencies"`
	Transitive []DependencyInfo `json:"transitive_dependencies"`
	Rejected   []string         `json:"rejected_dependencies"`
}

// Package is one vertex of the dependency graph with its enrichment data.
// Enrichment fields are empty until metadata has been merged in.
type Package struct {
	ID              PackageID         `json:"id"`
	License         *License          `json:"license,omitempty"`
	UploadTime      *time.Time        `json:"upload_time,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Description     string            `json:"-"`
	Author          string            `json:"author,omitempty"`
	AuthorEmail     string            `json:"author_email,omitempty"`
	Maintainer      string            `json:"maintainer,omitempty"`
	MaintainerEmail string            `json:"maintainer_email,omitempty"`
	HomePage        string            `json:"home_page,omitempty"`
	Keywords        string            `json:"keywords,omitempty"`
	Classifiers     []string          `json:"classifiers,omitempty"`
	RequiresDist    []string          `json:"requires_dist,omitempty"`
	ProjectURLs     map[string]string `json:"project_urls,omitempty"`
	RepoURL         string            `json:"repo_url,omitempty"`
	RepoLicense     string            `json:"repo_license,omitempty"`
	LatestVersion   string            `json:"latest_version,omitempty"`
	Dependencies    []DependencyInfo  `json:"dependencies,omitempty"`
	Approval        Approval          `json:"approval"`
}

// Name is shorthand for p.ID.Name.
func (p *Package) Name() string { return p.ID.Name }

// Version is shorthand for p.ID.Version.
func (p *Package) Version() string { return p.ID.Version }
