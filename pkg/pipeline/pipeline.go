// Package pipeline runs a complete dependency audit.
//
// This package implements the resolve → scan/enrich → approve → report
// sequence shared by the CLI and the HTTP API. By centralizing it, both
// entry points produce identical reports for identical input.
//
// # Stages
//
//  1. resolve: build the dependency graph from the requested specs
//  2. dependency-map: snapshot the direct dependencies per package
//  3. scan and enrich (concurrently): OSV lookups and registry metadata
//  4. merge: splice enriched packages back into the graph
//  5. policy: mark blocked licenses, select maintained packages
//  6. approve: two-pass approval over the graph
//  7. latest-versions: best-effort latest release lookups
//  8. report: assemble the [report.AnalysisResult]
//  9. persist: hand the result to the configured sink
//
// Only invalid input, total resolution failure and cancellation abort a
// run. Everything after resolution degrades to warnings.
//
// # Usage
//
//	runner, closeFn, err := pipeline.FromConfig(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer closeFn()
//
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Packages: []string{"flask==3.0.0", "requests"},
//	})
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/stackaudit/pkg/approval"
	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/report"
)

// Stage names reported to observability hooks.
const (
	StageResolve        = "resolve"
	StageDependencyMap  = "dependency-map"
	StageScan           = "scan"
	StageEnrich         = "enrich"
	StageMerge          = "merge"
	StagePolicy         = "policy"
	StageApprove        = "approve"
	StageLatestVersions = "latest-versions"
	StageReport         = "report"
	StagePersist        = "persist"
)

// DefaultConcurrency bounds parallel enrichment and latest-version lookups.
const DefaultConcurrency = 10

// Options describes one run. It supports JSON for API requests.
type Options struct {
	// Packages are the root specs: "name" or "name==version".
	Packages []string `json:"libraries"`

	// RunID identifies the run; a random UUID is used when empty.
	RunID string `json:"run_id,omitempty"`

	// Policy overrides the runner's policy for this run.
	Policy *approval.Policy `json:"policy,omitempty"`

	// SkipLatest disables latest-version lookups.
	SkipLatest bool `json:"skip_latest,omitempty"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks the request and fills in the run ID.
// It is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if len(o.Packages) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "at least one package is required")
	}
	for _, p := range o.Packages {
		if err := errors.ValidateSpec(p); err != nil {
			return err
		}
	}
	if o.Policy != nil {
		p := *o.Policy
		if err := p.Validate(); err != nil {
			return err
		}
		o.Policy = &p
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	o.validated = true
	return nil
}

// Result contains the outputs of a run.
type Result struct {
	// Report is the consolidated analysis.
	Report *report.AnalysisResult

	// Graph is the evaluated dependency graph.
	Graph *graph.Graph

	// Location is where the sink stored the report, if anywhere.
	Location string

	// PersistErr is the sink failure, if any. The report is still valid.
	PersistErr error

	// Stats contains timing and size information.
	Stats Stats
}

// Stats contains run statistics.
type Stats struct {
	Packages        int
	Vulnerabilities int
	EnrichFailures  int
	BlockedLicenses int
	Approval        approval.Stats
	Stages          map[string]time.Duration
	Duration        time.Duration
}
