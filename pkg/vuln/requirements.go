package vuln

import (
	"strings"

	"github.com/matzehuels/stackaudit/pkg/graph"
)

// Requirement is one pinned "name==version" line.
type Requirement struct {
	Name    string
	Version string
}

// Key returns "name@version".
func (r Requirement) Key() string { return r.Name + "@" + r.Version }

// ParseRequirements parses requirements text with one "name==version" per
// line. Blank lines and comments are skipped; lines that are not exact pins
// are returned in malformed. Duplicate pins are reported once.
func ParseRequirements(text string) (reqs []Requirement, malformed []string) {
	seen := make(map[Requirement]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		name, version, ok := strings.Cut(line, "==")
		name, version = strings.TrimSpace(name), strings.TrimSpace(version)
		if i := strings.Index(name, "["); i > 0 {
			name = strings.TrimSpace(name[:i])
		}
		if !ok || name == "" || version == "" || strings.ContainsAny(version, "=<>!~,; ") {
			malformed = append(malformed, line)
			continue
		}
		r := Requirement{Name: graph.NormalizeName(name), Version: version}
		if seen[r] {
			continue
		}
		seen[r] = true
		reqs = append(reqs, r)
	}
	return reqs, malformed
}
