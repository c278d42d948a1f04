package approval

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/matzehuels/stackaudit/pkg/clock"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/license"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// Reasons and warnings written to [graph.Approval.Reason].
const (
	ReasonIncomplete     = "basic data incomplete"
	ReasonMissingLicense = "missing license"
	ReasonInvalidLicense = "license not valid/recognized"
	ReasonBlockedLicense = "license rejected by policy"
	ReasonUnmaintained   = "unmaintained"
	ReasonRejectedDeps   = "rejected dependencies"
	WarningNoProjectURL  = "no project URL"
	WarningNoUploadDate  = "no upload date"
)

// ReasonVulnerable is the category of the "contains N vulnerabilities"
// reason. Evaluate never writes it verbatim.
const ReasonVulnerable = "vulnerable"

const reasonSeparator = ", "

// Stats summarizes one evaluation.
type Stats struct {
	Approved   int `json:"approved"`
	Rejected   int `json:"rejected"`
	Pending    int `json:"pending"`
	Propagated int `json:"propagated"` // rejected in pass 2 only
}

// Engine evaluates packages against a policy.
type Engine struct {
	policy    Policy
	validator *license.Validator
	clock     clock.Clock
}

// New creates an engine. A nil validator or clock uses the defaults.
func New(policy Policy, validator *license.Validator, clk clock.Clock) *Engine {
	if validator == nil {
		validator = license.NewValidator()
	}
	return &Engine{policy: policy, validator: validator, clock: clock.OrSystem(clk)}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy { return e.policy }

// verdict is a pass-1 result plus the warnings needed to rebuild the
// reason in pass 2.
type verdict struct {
	approval graph.Approval
	warnings []string
}

// Evaluate runs both passes over g and writes the outcome into each
// package's Approval. vulns is keyed by "name@version". Evaluate only reads
// package data, never prior approvals, so repeated calls give the same
// result.
func (e *Engine) Evaluate(g *graph.Graph, vulns map[string][]vuln.Record) Stats {
	now := e.clock.Now()
	ids := g.IDs()

	snapshot := make(map[graph.PackageID]verdict, len(ids))
	for _, id := range ids {
		p, _ := g.Find(id)
		snapshot[id] = e.evaluate(g, p, vulns[id.String()], now)
	}

	// A pass-1 approved package that reaches a pass-1 rejection will be
	// rejected in pass 2, so it counts as rejected for its dependents too.
	tainted := make(map[graph.PackageID]bool)
	for _, id := range ids {
		if snapshot[id].approval.Status != graph.StatusApproved {
			continue
		}
		for _, dep := range g.Reachable(id) {
			if snapshot[dep].approval.Status == graph.StatusRejected {
				tainted[id] = true
				break
			}
		}
	}
	finallyRejected := func(id graph.PackageID) bool {
		v, ok := snapshot[id]
		return ok && (v.approval.Status == graph.StatusRejected || tainted[id])
	}

	var stats Stats
	for _, id := range ids {
		v := snapshot[id]
		a := v.approval
		if a.Status != graph.StatusPending {
			a.Rejected = rejectedDependencies(g, id, finallyRejected)
			if a.Status == graph.StatusApproved && len(a.Rejected) > 0 {
				a.Status = graph.StatusRejected
				a.Reason = joinReasons(append([]string{ReasonRejectedDeps}, v.warnings...))
				stats.Propagated++
			}
		}
		switch a.Status {
		case graph.StatusApproved:
			stats.Approved++
		case graph.StatusRejected:
			stats.Rejected++
		default:
			stats.Pending++
		}
		g.Update(id, func(p *graph.Package) { p.Approval = a })
	}
	return stats
}

// EvaluatePackage runs pass 1 for a single package of g.
func (e *Engine) EvaluatePackage(g *graph.Graph, p graph.Package, records []vuln.Record) graph.Approval {
	return e.evaluate(g, p, records, e.clock.Now()).approval
}

func (e *Engine) evaluate(g *graph.Graph, p graph.Package, records []vuln.Record, now time.Time) verdict {
	if strings.TrimSpace(p.ID.Name) == "" || strings.TrimSpace(p.ID.Version) == "" {
		return verdict{approval: graph.Approval{
			Status:     graph.StatusPending,
			Reason:     ReasonIncomplete,
			Direct:     []graph.DependencyInfo{},
			Transitive: []graph.DependencyInfo{},
			Rejected:   []string{},
		}}
	}

	var warnings []string
	if p.RepoURL == "" && p.HomePage == "" {
		warnings = append(warnings, WarningNoProjectURL)
	}
	if p.UploadTime == nil {
		warnings = append(warnings, WarningNoUploadDate)
	}

	var reasons []string
	switch l := p.License; {
	case l == nil || strings.TrimSpace(l.Name) == "":
		reasons = append(reasons, ReasonMissingLicense)
	case !l.Recognized && !e.validator.IsValid(l.Name):
		reasons = append(reasons, ReasonInvalidLicense)
	}
	if p.License != nil && p.License.Rejected {
		reasons = append(reasons, ReasonBlockedLicense)
	}
	if !e.policy.IsMaintained(p, now) {
		reasons = append(reasons, ReasonUnmaintained)
	}
	if n := len(e.policy.Disqualifying(records)); n > 0 {
		noun := "vulnerabilities"
		if n == 1 {
			noun = "vulnerability"
		}
		reasons = append(reasons, fmt.Sprintf("contains %d %s", n, noun))
	}

	direct, transitive := SplitDependencies(g, p)
	a := graph.Approval{
		Status:     graph.StatusApproved,
		Direct:     direct,
		Transitive: transitive,
		Rejected:   []string{},
	}
	if len(reasons) > 0 {
		a.Status = graph.StatusRejected
		a.Reason = joinReasons(append(reasons, warnings...))
	} else {
		a.Reason = joinReasons(warnings)
	}
	return verdict{approval: a, warnings: warnings}
}

// rejectedDependencies walks everything reachable from id and returns the
// distinct names of dependencies that are rejected, in walk order.
func rejectedDependencies(g *graph.Graph, id graph.PackageID, rejected func(graph.PackageID) bool) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, dep := range g.Reachable(id) {
		if rejected(dep) && !seen[dep.Name] {
			seen[dep.Name] = true
			out = append(out, dep.Name)
		}
	}
	return out
}

var (
	extraMarker = regexp.MustCompile(`;.*\bextra\s*==`)
	reqName     = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)`)
)

// optionalNames returns the normalized names that requires_dist declares
// only behind an extra marker.
func optionalNames(requiresDist []string) map[string]bool {
	optional := make(map[string]bool)
	required := make(map[string]bool)
	for _, req := range requiresDist {
		m := reqName.FindStringSubmatch(req)
		if m == nil {
			continue
		}
		name := graph.NormalizeName(m[1])
		if extraMarker.MatchString(req) {
			optional[name] = true
		} else {
			required[name] = true
		}
	}
	for name := range required {
		delete(optional, name)
	}
	return optional
}

// SplitDependencies returns p's production dependencies and its transitive
// ones. Declared dependencies guarded by an extra marker in requires_dist
// are moved to the transitive list, which also holds every reachable
// package that is not a direct dependency. Both lists are deduplicated by
// name.
func SplitDependencies(g *graph.Graph, p graph.Package) (direct, transitive []graph.DependencyInfo) {
	direct, transitive = []graph.DependencyInfo{}, []graph.DependencyInfo{}
	optional := optionalNames(p.RequiresDist)
	seen := map[string]bool{p.ID.Name: true}

	for _, d := range p.Dependencies {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		if optional[d.Name] {
			transitive = append(transitive, d)
		} else {
			direct = append(direct, d)
		}
	}
	for _, id := range g.Reachable(p.ID) {
		if seen[id.Name] {
			continue
		}
		seen[id.Name] = true
		transitive = append(transitive, graph.DependencyInfo{Name: id.Name, Version: id.Version})
	}
	return direct, transitive
}

// joinReasons joins distinct reasons, comparing case-insensitively and
// keeping the first spelling.
func joinReasons(reasons []string) string {
	seen := make(map[string]bool, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		r = strings.TrimSpace(r)
		key := strings.ToLower(r)
		if r == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return strings.Join(out, reasonSeparator)
}

// Category reduces a joined reason to its first component with counts
// removed, so it can serve as a bounded metric label.
func Category(reason string) string {
	first, _, _ := strings.Cut(reason, reasonSeparator)
	if strings.HasPrefix(first, "contains ") {
		return ReasonVulnerable
	}
	return first
}
