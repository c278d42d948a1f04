package python

import (
	"errors"
	"fmt"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// ErrNoMatchingVersion is returned when no release satisfies a specifier.
var ErrNoMatchingVersion = errors.New("no matching version")

// SelectVersion returns the highest version satisfying specifier (PEP 440).
// Final releases win over pre-releases; a pre-release is only chosen when
// nothing else matches. An empty specifier matches every version.
// Unparseable versions are ignored.
func SelectVersion(versions []string, specifier string) (string, error) {
	var specs pep440.Specifiers
	if specifier != "" {
		s, err := pep440.NewSpecifiers(specifier, pep440.WithPreRelease(true))
		if err != nil {
			return "", fmt.Errorf("invalid specifier %q: %w", specifier, err)
		}
		specs = s
	}

	var (
		best, bestPre       pep440.Version
		bestRaw, bestPreRaw string
	)
	for _, raw := range versions {
		v, err := pep440.Parse(raw)
		if err != nil {
			continue
		}
		if specifier != "" && !specs.Check(v) {
			continue
		}
		if v.IsPreRelease() {
			if bestPreRaw == "" || v.GreaterThan(bestPre) {
				bestPre, bestPreRaw = v, raw
			}
			continue
		}
		if bestRaw == "" || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}

	switch {
	case bestRaw != "":
		return bestRaw, nil
	case bestPreRaw != "":
		return bestPreRaw, nil
	case specifier == "":
		return "", ErrNoMatchingVersion
	default:
		return "", fmt.Errorf("%w for %q", ErrNoMatchingVersion, specifier)
	}
}
