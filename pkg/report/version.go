package report

import (
	"github.com/Masterminds/semver/v3"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Outdated reports whether latest is newer than current. Versions are
// compared under PEP 440, falling back to semantic versioning; when
// neither parses the package is not flagged.
func Outdated(current, latest string) bool {
	if current == "" || latest == "" || current == latest {
		return false
	}
	if c, err := pep440.Parse(current); err == nil {
		if l, err := pep440.Parse(latest); err == nil {
			return c.LessThan(l)
		}
	}
	c, err := semver.NewVersion(current)
	if err != nil {
		return false
	}
	l, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}
	return c.LessThan(l)
}
