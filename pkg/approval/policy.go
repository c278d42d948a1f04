package approval

import (
	"strings"
	"time"

	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// DefaultMaintainabilityYears is the default release-recency window.
const DefaultMaintainabilityYears = 2

// Policy holds the approval rules applied to every package.
type Policy struct {
	Name string `json:"name" toml:"name" yaml:"name"`

	// MaintainabilityYears is how many years (of 365 days) may have passed
	// since the last upload for a package to count as maintained.
	MaintainabilityYears int `json:"maintainability_years" toml:"maintainability_years" yaml:"maintainability_years"`

	// BlockedLicenses are matched case-insensitively against a license's
	// name or canonical type.
	BlockedLicenses []string `json:"blocked_licenses" toml:"blocked_licenses" yaml:"blocked_licenses"`

	// MaxSeverity is the highest tolerated vulnerability severity. When
	// empty, any vulnerability disqualifies a package.
	MaxSeverity vuln.Severity `json:"max_severity,omitempty" toml:"max_severity" yaml:"max_severity,omitempty"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{Name: "default", MaintainabilityYears: DefaultMaintainabilityYears}
}

// Validate checks the policy and normalizes MaxSeverity.
func (p *Policy) Validate() error {
	if p.MaintainabilityYears <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "maintainability years must be positive, got %d", p.MaintainabilityYears)
	}
	if p.MaxSeverity != "" {
		sev, ok := vuln.ParseSeverity(string(p.MaxSeverity))
		if !ok {
			return errors.New(errors.ErrCodeInvalidConfig, "unknown max severity %q", p.MaxSeverity)
		}
		p.MaxSeverity = sev
	}
	for i, l := range p.BlockedLicenses {
		p.BlockedLicenses[i] = strings.TrimSpace(l)
	}
	if p.Name == "" {
		p.Name = "default"
	}
	return nil
}

// Window returns the maintenance window as a duration.
func (p Policy) Window() time.Duration {
	return time.Duration(p.MaintainabilityYears) * 365 * 24 * time.Hour
}

// IsBlocked reports whether l matches a blocked license.
func (p Policy) IsBlocked(l *graph.License) bool {
	if l == nil {
		return false
	}
	for _, b := range p.BlockedLicenses {
		if b == "" {
			continue
		}
		if strings.EqualFold(b, l.Name) || (l.Type != "" && strings.EqualFold(b, l.Type)) {
			return true
		}
	}
	return false
}

// MarkBlockedLicenses sets License.Rejected on every package whose license
// is blocked and clears it elsewhere. It returns the number of blocked
// packages.
func (p Policy) MarkBlockedLicenses(g *graph.Graph) int {
	blocked := 0
	for _, id := range g.IDs() {
		g.Update(id, func(pkg *graph.Package) {
			if pkg.License == nil {
				return
			}
			l := *pkg.License
			l.Rejected = p.IsBlocked(&l)
			pkg.License = &l
			if l.Rejected {
				blocked++
			}
		})
	}
	return blocked
}

// IsMaintained reports whether pkg was uploaded within the window. A
// package without an upload time is not maintained.
func (p Policy) IsMaintained(pkg graph.Package, now time.Time) bool {
	if pkg.UploadTime == nil {
		return false
	}
	return now.Sub(*pkg.UploadTime) <= p.Window()
}

// Maintained returns the packages that satisfy [Policy.IsMaintained].
func (p Policy) Maintained(pkgs []graph.Package, now time.Time) []graph.Package {
	out := make([]graph.Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		if p.IsMaintained(pkg, now) {
			out = append(out, pkg)
		}
	}
	return out
}

// Disqualifying returns the records that count against a package.
func (p Policy) Disqualifying(records []vuln.Record) []vuln.Record {
	if p.MaxSeverity == "" {
		return records
	}
	limit := p.MaxSeverity.Rank()
	var out []vuln.Record
	for _, r := range records {
		if r.Severity.Rank() > limit {
			out = append(out, r)
		}
	}
	return out
}
