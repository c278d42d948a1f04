package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackaudit/pkg/approval"
	"github.com/matzehuels/stackaudit/pkg/clock"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/license"
	"github.com/matzehuels/stackaudit/pkg/metadata"
	"github.com/matzehuels/stackaudit/pkg/observability"
	"github.com/matzehuels/stackaudit/pkg/report"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// Resolver builds the dependency graph for a list of specs.
// [deps.Resolver] implements it.
type Resolver interface {
	Resolve(ctx context.Context, specs []string) (*graph.Graph, error)
}

// Runner executes audits. It holds no per-run state, so one Runner can
// serve concurrent runs.
type Runner struct {
	Resolver    Resolver
	Scanner     vuln.Scanner
	Metadata    metadata.Provider
	Policy      approval.Policy
	Validator   *license.Validator
	Sink        report.Sink
	Clock       clock.Clock
	Logger      *log.Logger
	Concurrency int
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

func (r *Runner) concurrency() int {
	if r.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return r.Concurrency
}

// Execute runs every stage for opts. Invalid input, a run in which no
// package resolved, and cancellation are returned as errors; scan,
// enrichment, latest-version and sink failures are logged and recorded
// in the report warnings instead.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if r.Resolver == nil {
		return nil, fmt.Errorf("pipeline: no resolver configured")
	}

	start := time.Now()
	clk := clock.OrSystem(r.Clock)
	logger := r.logger().With("run", opts.RunID)
	policy := r.Policy
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	run := &execution{runner: r, logger: logger, timings: make(map[string]time.Duration)}
	res, err := run.execute(ctx, opts, policy, clk)

	var pkgs, vulns int
	if res != nil {
		pkgs, vulns = res.Stats.Packages, res.Stats.Vulnerabilities
		res.Stats.Stages = run.timings
		res.Stats.Duration = time.Since(start)
	}
	observability.Pipeline().OnRunComplete(ctx, pkgs, vulns, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	logger.Info("analysis complete",
		"packages", res.Stats.Packages,
		"vulnerabilities", res.Stats.Vulnerabilities,
		"approved", res.Stats.Approval.Approved,
		"rejected", res.Stats.Approval.Rejected,
		"duration", res.Stats.Duration.Round(time.Millisecond))
	return res, nil
}

// execution carries the state of a single run.
type execution struct {
	runner   *Runner
	logger   *log.Logger
	mu       sync.Mutex
	timings  map[string]time.Duration
	warnings []string
}

func (e *execution) warn(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}

// stage runs fn between the observability hooks and records its duration.
func (e *execution) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, name)
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	hooks.OnStageComplete(ctx, name, d, err)

	e.mu.Lock()
	e.timings[name] = d
	e.mu.Unlock()

	e.logger.Debug("stage complete", "stage", name, "duration", d.Round(time.Millisecond))
	return err
}

func (e *execution) execute(ctx context.Context, opts Options, policy approval.Policy, clk clock.Clock) (*Result, error) {
	r := e.runner
	res := &Result{}

	var g *graph.Graph
	err := e.stage(ctx, StageResolve, func(ctx context.Context) error {
		var err error
		g, err = r.Resolver.Resolve(ctx, opts.Packages)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("resolved dependencies", "packages", g.Len(), "edges", g.EdgeCount())

	var depMap map[string][]string
	e.stage(ctx, StageDependencyMap, func(context.Context) error {
		depMap = g.DependencyMap()
		return nil
	})

	var (
		vulns    map[string][]vuln.Record
		enriched []graph.Package
		failures int
	)
	requirements := g.Requirements()
	packages := g.Packages()

	var wg errgroup.Group
	wg.Go(func() error {
		e.stage(ctx, StageScan, func(ctx context.Context) error {
			vulns = e.scan(ctx, requirements)
			return nil
		})
		return nil
	})
	wg.Go(func() error {
		e.stage(ctx, StageEnrich, func(ctx context.Context) error {
			enriched, failures = e.enrich(ctx, packages)
			return nil
		})
		return nil
	})
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.stage(ctx, StageMerge, func(context.Context) error {
		g.MergePackageData(enriched)
		return nil
	})

	var (
		blocked    int
		maintained []graph.Package
	)
	e.stage(ctx, StagePolicy, func(context.Context) error {
		blocked = policy.MarkBlockedLicenses(g)
		maintained = policy.Maintained(g.Packages(), clk.Now())
		return nil
	})

	var stats approval.Stats
	e.stage(ctx, StageApprove, func(context.Context) error {
		stats = approval.New(policy, r.Validator, clk).Evaluate(g, vulns)
		return nil
	})
	emitAudit(ctx, g, vulns)

	if !opts.SkipLatest && r.Metadata != nil {
		e.stage(ctx, StageLatestVersions, func(ctx context.Context) error {
			e.latestVersions(ctx, g)
			return nil
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.stage(ctx, StageReport, func(context.Context) error {
		res.Report = report.NewBuilder(clk).Build(report.Input{
			RunID:           opts.RunID,
			Requested:       opts.Packages,
			Graph:           g,
			Vulnerabilities: vulns,
			Maintained:      maintained,
			Policy:          policy,
			DependencyMap:   depMap,
			Warnings:        e.warnings,
		})
		return nil
	})

	if r.Sink != nil {
		e.stage(ctx, StagePersist, func(ctx context.Context) error {
			res.Location, res.PersistErr = r.Sink.Save(ctx, res.Report)
			if res.PersistErr != nil {
				e.logger.Warn("could not persist report", "error", res.PersistErr)
			} else if res.Location != "" {
				e.logger.Info("report saved", "location", res.Location)
			}
			return res.PersistErr
		})
	}

	res.Graph = g
	res.Stats.Packages = g.Len()
	res.Stats.Vulnerabilities = vuln.Count(vulns)
	res.Stats.EnrichFailures = failures
	res.Stats.BlockedLicenses = blocked
	res.Stats.Approval = stats
	return res, nil
}

// scan never fails the run: an unavailable scanner yields no records and
// a report warning.
func (e *execution) scan(ctx context.Context, requirements string) map[string][]vuln.Record {
	scanner := e.runner.Scanner
	if scanner == nil {
		return map[string][]vuln.Record{}
	}
	vulns, err := scanner.Scan(ctx, requirements)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("vulnerability scan failed", "error", err)
			e.warn("vulnerability scan failed: %v", err)
		}
		return map[string][]vuln.Record{}
	}
	if vulns == nil {
		vulns = map[string][]vuln.Record{}
	}
	e.logger.Info("scanned vulnerabilities", "found", vuln.Count(vulns))
	return vulns
}

// enrich fetches metadata for every package with bounded parallelism. It
// returns new package values for a single-threaded merge; packages that
// could not be enriched are returned unchanged.
func (e *execution) enrich(ctx context.Context, pkgs []graph.Package) ([]graph.Package, int) {
	provider := e.runner.Metadata
	if provider == nil {
		return nil, 0
	}

	out := make([]graph.Package, len(pkgs))
	failed := make([]bool, len(pkgs))

	var g errgroup.Group
	g.SetLimit(e.runner.concurrency())
	for i, p := range pkgs {
		g.Go(func() error {
			if ctx.Err() != nil {
				out[i], failed[i] = p, true
				return nil
			}
			enriched, err := provider.Enrich(ctx, p)
			if err != nil {
				e.logger.Debug("enrichment failed", "package", p.ID, "error", err)
				out[i], failed[i] = p, true
				return nil
			}
			out[i] = enriched
			return nil
		})
	}
	g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	if n > 0 && ctx.Err() == nil {
		e.logger.Warn("metadata unavailable for some packages", "count", n, "total", len(pkgs))
		e.warn("metadata unavailable for %d of %d packages", n, len(pkgs))
	}
	e.logger.Info("enriched packages", "count", len(pkgs)-n)
	return out, n
}

// latestVersions looks up the newest release of every package name and
// records it on the package and on every dependency entry naming it.
// Lookups that fail leave the existing values alone.
func (e *execution) latestVersions(ctx context.Context, g *graph.Graph) {
	var names []string
	seen := make(map[string]bool)
	for _, id := range g.IDs() {
		if !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
	}

	latest := make([]string, len(names))
	var eg errgroup.Group
	eg.SetLimit(e.runner.concurrency())
	for i, name := range names {
		eg.Go(func() error {
			v, err := e.runner.Metadata.LatestVersion(ctx, name)
			if err != nil {
				e.logger.Debug("latest version lookup failed", "package", name, "error", err)
				return nil
			}
			latest[i] = v
			return nil
		})
	}
	eg.Wait()

	byName := make(map[string]string, len(names))
	for i, name := range names {
		if latest[i] != "" {
			byName[name] = latest[i]
		}
	}
	fill := func(deps []graph.DependencyInfo) {
		for i := range deps {
			if v, ok := byName[deps[i].Name]; ok {
				deps[i].LatestVersion = v
			}
		}
	}
	for _, id := range g.IDs() {
		g.Update(id, func(p *graph.Package) {
			if v, ok := byName[id.Name]; ok {
				p.LatestVersion = v
			}
			fill(p.Dependencies)
			fill(p.Approval.Direct)
			fill(p.Approval.Transitive)
		})
	}
}

// emitAudit reports every decision and finding to the audit hooks.
func emitAudit(ctx context.Context, g *graph.Graph, vulns map[string][]vuln.Record) {
	hooks := observability.Audit()
	for _, p := range g.Packages() {
		hooks.OnDecision(ctx, string(p.Approval.Status), approval.Category(p.Approval.Reason))
	}
	for _, recs := range vulns {
		for _, rec := range recs {
			hooks.OnVulnerability(ctx, string(rec.Severity))
		}
	}
}
