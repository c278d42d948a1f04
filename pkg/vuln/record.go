package vuln

import (
	"strings"
)

// Severity is a normalized vulnerability severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 1 (low) to 4 (critical). Unknown values
// rank as low.
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 1
	}
}

// ParseSeverity maps a severity label to a [Severity]. GitHub's
// "moderate" is accepted as medium.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, true
	case "medium", "moderate":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	}
	return "", false
}

// SeverityFromScore buckets a CVSS base score.
func SeverityFromScore(score float64) Severity {
	switch {
	case score < 4.0:
		return SeverityLow
	case score < 7.0:
		return SeverityMedium
	case score < 9.0:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Record is one vulnerability affecting one package version.
type Record struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Package     string   `json:"package"`
	Version     string   `json:"version"`
	CVSS        float64  `json:"cvss_score,omitempty"`
	CVSSVector  string   `json:"cvss_vector,omitempty"`
	FixedIn     string   `json:"fixed_in,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	References  []string `json:"references,omitempty"`
}

// Key returns "package@version".
func (r Record) Key() string { return r.Package + "@" + r.Version }

// Count returns the total number of records in a scan result.
func Count(results map[string][]Record) int {
	n := 0
	for _, rs := range results {
		n += len(rs)
	}
	return n
}
