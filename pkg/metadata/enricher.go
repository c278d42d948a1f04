package metadata

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/integrations"
	"github.com/matzehuels/stackaudit/pkg/integrations/github"
	"github.com/matzehuels/stackaudit/pkg/integrations/gitlab"
	"github.com/matzehuels/stackaudit/pkg/integrations/pypi"
	"github.com/matzehuels/stackaudit/pkg/license"
)

// Provider supplies registry metadata for packages.
type Provider interface {
	// Enrich returns pkg with registry data filled in. On error the
	// returned package is pkg unchanged.
	Enrich(ctx context.Context, pkg graph.Package) (graph.Package, error)

	// LatestVersion returns the newest released version of name.
	LatestVersion(ctx context.Context, name string) (string, error)
}

// Enricher is the PyPI-backed [Provider] with code-host license fallback.
// It is safe for concurrent use.
type Enricher struct {
	pypi      *pypi.Client
	github    *github.Client
	gitlab    *gitlab.Client
	validator *license.Validator
	logger    *log.Logger
	refresh   bool
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithGitHub enables GitHub as a secondary license source.
func WithGitHub(c *github.Client) Option { return func(e *Enricher) { e.github = c } }

// WithGitLab enables GitLab as a secondary license source.
func WithGitLab(c *gitlab.Client) Option { return func(e *Enricher) { e.gitlab = c } }

// WithValidator replaces the license validator.
func WithValidator(v *license.Validator) Option {
	return func(e *Enricher) {
		if v != nil {
			e.validator = v
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRefresh bypasses cached registry responses.
func WithRefresh(refresh bool) Option { return func(e *Enricher) { e.refresh = refresh } }

// NewEnricher creates an Enricher reading from the given PyPI client.
func NewEnricher(p *pypi.Client, opts ...Option) *Enricher {
	e := &Enricher{pypi: p, validator: license.NewValidator(), logger: log.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich implements [Provider].
func (e *Enricher) Enrich(ctx context.Context, pkg graph.Package) (graph.Package, error) {
	rel, err := e.pypi.FetchRelease(ctx, pkg.ID.Name, pkg.ID.Version, e.refresh)
	if err != nil {
		return pkg, fmt.Errorf("pypi %s: %w", pkg.ID, err)
	}

	out := pkg
	out.Summary = rel.Summary
	out.Description = rel.Description
	out.Author = rel.Author
	out.AuthorEmail = rel.AuthorEmail
	out.Maintainer = rel.Maintainer
	out.MaintainerEmail = rel.MaintainerEmail
	out.HomePage = rel.HomePage
	out.Keywords = rel.Keywords
	out.Classifiers = slices.Clone(rel.Classifiers)
	out.RequiresDist = slices.Clone(rel.RequiresDist)
	out.ProjectURLs = maps.Clone(rel.ProjectURLs)
	if rel.UploadTime != nil {
		t := *rel.UploadTime
		out.UploadTime = &t
	}
	out.RepoURL = ProjectURL(rel.ProjectURLs, rel.HomePage, rel.Summary+"\n"+rel.Description)

	src := license.Sources{
		License:           rel.License,
		LicenseExpression: rel.LicenseExpression,
		Classifiers:       rel.Classifiers,
	}
	lic := e.validator.Resolve(src)
	if lic == nil || !lic.Recognized {
		src.Repositories = e.repoLicenses(ctx, rel)
		if len(src.Repositories) > 0 {
			out.RepoLicense = src.Repositories[0].Identifier
			lic = e.validator.Resolve(src)
		}
	}
	out.License = lic
	return out, nil
}

// LatestVersion implements [Provider].
func (e *Enricher) LatestVersion(ctx context.Context, name string) (string, error) {
	return e.pypi.LatestVersion(ctx, name)
}

// repoLicenses asks the configured code hosts for the repository license.
// Failures are logged and skipped.
func (e *Enricher) repoLicenses(ctx context.Context, rel *pypi.Release) []license.RepoLicense {
	var out []license.RepoLicense
	if e.github != nil {
		if owner, repo, ok := github.ExtractURL(rel.ProjectURLs, rel.HomePage); ok {
			l, err := e.github.License(ctx, owner, repo, e.refresh)
			switch {
			case err != nil:
				e.logLookup("github", owner+"/"+repo, err)
			case l.Identifier() != "":
				out = append(out, license.RepoLicense{Source: graph.LicenseSourceGitHub, Identifier: l.Identifier()})
			}
		}
	}
	if e.gitlab != nil {
		if owner, repo, ok := gitlab.ExtractURL(rel.ProjectURLs, rel.HomePage); ok {
			path := owner + "/" + repo
			l, err := e.gitlab.License(ctx, path, e.refresh)
			switch {
			case err != nil:
				e.logLookup("gitlab", path, err)
			case l.Identifier() != "":
				out = append(out, license.RepoLicense{Source: graph.LicenseSourceGitLab, Identifier: l.Identifier()})
			}
		}
	}
	return out
}

func (e *Enricher) logLookup(host, repo string, err error) {
	switch {
	case errors.Is(err, integrations.ErrRateLimited):
		e.logger.Warn("repository license lookup rate limited", "host", host, "repo", repo)
	case errors.Is(err, integrations.ErrNotFound):
		e.logger.Debug("repository license not found", "host", host, "repo", repo)
	default:
		e.logger.Warn("repository license lookup failed", "host", host, "repo", repo, "error", err)
	}
}

var githubInText = regexp.MustCompile(`https://github\.com/[\w\-]+/[\w\-]+`)

// ProjectURL returns a GitHub project URL for a release: the first project
// URL mentioning github.com (by sorted label), else a GitHub homepage,
// else the shortest GitHub URL found in text.
func ProjectURL(projectURLs map[string]string, homepage, text string) string {
	for _, k := range slices.Sorted(maps.Keys(projectURLs)) {
		if u := projectURLs[k]; strings.Contains(u, "github.com") {
			return u
		}
	}
	if strings.Contains(homepage, "github.com") {
		return homepage
	}
	var best string
	for _, m := range githubInText.FindAllString(text, -1) {
		if best == "" || len(m) < len(best) {
			best = m
		}
	}
	return best
}
