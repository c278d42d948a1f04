package vuln

import (
	"slices"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/google/osv-scanner/pkg/models"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"

	"github.com/matzehuels/stackaudit/pkg/graph"
)

// FromOSV converts an OSV entry into a Record for the given package version.
func FromOSV(v *models.Vulnerability, name, version string) Record {
	sev, score, vector := Classify(v)
	r := Record{
		ID:          v.ID,
		Title:       firstNonEmpty(v.Summary, v.ID),
		Description: v.Details,
		Severity:    sev,
		Package:     graph.NormalizeName(name),
		Version:     version,
		CVSS:        score,
		CVSSVector:  vector,
		FixedIn:     FixedIn(v, name, version),
		Aliases:     slices.Clone(v.Aliases),
	}
	for _, ref := range v.References {
		if ref.URL != "" {
			r.References = append(r.References, ref.URL)
		}
	}
	return r
}

// Classify returns the severity of v with the highest CVSS v3/v4 base score
// and its vector. Without a parsable vector it falls back to the
// database_specific severity label, then to low.
func Classify(v *models.Vulnerability) (Severity, float64, string) {
	var (
		best   float64
		vector string
	)
	consider := func(sevs []models.Severity) {
		for _, s := range sevs {
			if s.Type != models.SeverityCVSSV3 && s.Type != models.SeverityCVSSV4 {
				continue
			}
			if score := CVSSScore(s.Score); score > best {
				best, vector = score, s.Score
			}
		}
	}
	consider(v.Severity)
	for _, a := range v.Affected {
		consider(a.Severity)
	}
	if best > 0 {
		return SeverityFromScore(best), best, vector
	}

	if sev, ok := labelSeverity(v.DatabaseSpecific); ok {
		return sev, 0, ""
	}
	for _, a := range v.Affected {
		if sev, ok := labelSeverity(a.DatabaseSpecific); ok {
			return sev, 0, ""
		}
	}
	return SeverityLow, 0, ""
}

// CVSSScore computes the base score of a CVSS 3.x or 4.0 vector, or 0 when
// the vector cannot be parsed.
func CVSSScore(vector string) float64 {
	switch {
	case strings.HasPrefix(vector, "CVSS:3.1"), strings.HasPrefix(vector, "CVSS:3.0"):
		if m, err := gocvss31.ParseVector(vector); err == nil {
			return m.BaseScore()
		}
	case strings.HasPrefix(vector, "CVSS:4.0"):
		if m, err := gocvss40.ParseVector(vector); err == nil {
			return m.Score()
		}
	}
	return 0
}

func labelSeverity(db map[string]interface{}) (Severity, bool) {
	label, _ := db["severity"].(string)
	return ParseSeverity(label)
}

// FixedIn returns the first fixed version of the affected range that
// contains version, compared with PEP 440 ordering. It returns "" when the
// version is in no range or the range has no fix.
func FixedIn(v *models.Vulnerability, name, version string) string {
	cur, err := pep440.Parse(version)
	if err != nil {
		return ""
	}
	name = graph.NormalizeName(name)
	for _, a := range v.Affected {
		if a.Package.Name != "" && graph.NormalizeName(a.Package.Name) != name {
			continue
		}
		for _, rng := range a.Ranges {
			if rng.Type != models.RangeEcosystem {
				continue
			}
			if fix := fixedInRange(cur, rng.Events); fix != "" {
				return fix
			}
		}
	}
	return ""
}

// fixedInRange walks events in order; each introduced opens an interval
// closed by the next fixed or last_affected event.
func fixedInRange(cur pep440.Version, events []models.Event) string {
	var (
		open       bool
		introduced pep440.Version
		unbounded  bool
	)
	for _, e := range events {
		switch {
		case e.Introduced != "":
			open = true
			unbounded = e.Introduced == "0"
			if !unbounded {
				iv, err := pep440.Parse(e.Introduced)
				if err != nil {
					open = false
					continue
				}
				introduced = iv
			}
		case e.Fixed != "" && open:
			open = false
			fv, err := pep440.Parse(e.Fixed)
			if err != nil {
				continue
			}
			if (unbounded || cur.GreaterThanOrEqual(introduced)) && cur.LessThan(fv) {
				return e.Fixed
			}
		case e.LastAffected != "" && open:
			open = false
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
