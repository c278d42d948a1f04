package pypi

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/integrations"
)

// DefaultBaseURL is the public PyPI JSON API root.
const DefaultBaseURL = "https://pypi.org/pypi"

// Release holds the metadata PyPI publishes for one version of a project.
//
// Name is the PEP 503 normalized project name; DisplayName keeps the
// registry's spelling. UploadTime is nil when the release has no files.
type Release struct {
	Name              string            `json:"name"`
	DisplayName       string            `json:"display_name"`
	Version           string            `json:"version"`
	Summary           string            `json:"summary,omitempty"`
	Description       string            `json:"description,omitempty"`
	License           string            `json:"license,omitempty"`
	LicenseExpression string            `json:"license_expression,omitempty"`
	Author            string            `json:"author,omitempty"`
	AuthorEmail       string            `json:"author_email,omitempty"`
	Maintainer        string            `json:"maintainer,omitempty"`
	MaintainerEmail   string            `json:"maintainer_email,omitempty"`
	HomePage          string            `json:"home_page,omitempty"`
	Keywords          string            `json:"keywords,omitempty"`
	Classifiers       []string          `json:"classifiers,omitempty"`
	RequiresDist      []string          `json:"requires_dist,omitempty"`
	ProjectURLs       map[string]string `json:"project_urls,omitempty"`
	UploadTime        *time.Time        `json:"upload_time,omitempty"`
	Yanked            bool              `json:"yanked,omitempty"`
}

// Project is the project-level view: the latest release plus every
// version that has at least one non-yanked file.
type Project struct {
	Latest   Release  `json:"latest"`
	Versions []string `json:"versions"`
}

// Client provides access to the PyPI JSON API.
// It handles HTTP requests with caching and automatic retries.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a PyPI client with the given cache backend.
//
// Parameters:
//   - c: Cache backend for HTTP response caching (nil disables caching)
//   - cacheTTL: How long responses are cached (typical: 1-24 hours)
//   - baseURL: API root; empty uses [DefaultBaseURL]
//
// The returned Client is safe for concurrent use.
func NewClient(c cache.Cache, cacheTTL time.Duration, baseURL string, opts ...integrations.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  integrations.NewClient(c, "pypi", cacheTTL, nil, opts...),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// FetchRelease retrieves metadata for one version of a project.
//
// If the version endpoint returns 404 the project endpoint is used instead,
// so callers always get the closest metadata PyPI has. An empty version
// fetches the latest release directly.
//
// Returns [integrations.ErrNotFound] only if the project itself is unknown.
func (c *Client) FetchRelease(ctx context.Context, name, version string, refresh bool) (*Release, error) {
	name = integrations.NormalizePkgName(name)
	if version == "" {
		p, err := c.FetchProject(ctx, name, refresh)
		if err != nil {
			return nil, err
		}
		return &p.Latest, nil
	}

	var rel Release
	err := c.Cached(ctx, name+"@"+version, refresh, &rel, func(ctx context.Context) error {
		var data apiResponse
		url := fmt.Sprintf("%s/%s/%s/json", c.baseURL, integrations.PathEscape(name), integrations.PathEscape(version))
		if err := c.Get(ctx, url, &data); err != nil {
			return err
		}
		rel = data.release()
		return nil
	})
	if err == nil {
		return &rel, nil
	}
	if !errors.Is(err, integrations.ErrNotFound) {
		return nil, err
	}

	c.Logger().Debug("release not found, using project metadata", "package", name, "version", version)
	p, err := c.FetchProject(ctx, name, refresh)
	if err != nil {
		return nil, err
	}
	return &p.Latest, nil
}

// FetchProject retrieves the project endpoint: latest release metadata and
// the list of installable versions.
func (c *Client) FetchProject(ctx context.Context, name string, refresh bool) (*Project, error) {
	name = integrations.NormalizePkgName(name)

	var p Project
	err := c.Cached(ctx, name, refresh, &p, func(ctx context.Context) error {
		var data apiResponse
		if err := c.Get(ctx, fmt.Sprintf("%s/%s/json", c.baseURL, integrations.PathEscape(name)), &data); err != nil {
			if errors.Is(err, integrations.ErrNotFound) {
				return fmt.Errorf("%w: pypi package %s", err, name)
			}
			return err
		}
		p = Project{Latest: data.release(), Versions: data.installableVersions()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestVersion returns the version PyPI reports as current for name.
func (c *Client) LatestVersion(ctx context.Context, name string) (string, error) {
	p, err := c.FetchProject(ctx, name, false)
	if err != nil {
		return "", err
	}
	return p.Latest.Version, nil
}

type apiResponse struct {
	Info     apiInfo              `json:"info"`
	URLs     []apiFile            `json:"urls"`
	Releases map[string][]apiFile `json:"releases"`
}

type apiInfo struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	Summary           string         `json:"summary"`
	Description       string         `json:"description"`
	License           string         `json:"license"`
	LicenseExpression string         `json:"license_expression"`
	Author            string         `json:"author"`
	AuthorEmail       string         `json:"author_email"`
	Maintainer        string         `json:"maintainer"`
	MaintainerEmail   string         `json:"maintainer_email"`
	HomePage          string         `json:"home_page"`
	Keywords          string         `json:"keywords"`
	Classifiers       []string       `json:"classifiers"`
	RequiresDist      []string       `json:"requires_dist"`
	ProjectURLs       map[string]any `json:"project_urls"`
	Yanked            bool           `json:"yanked"`
}

type apiFile struct {
	UploadTime        string `json:"upload_time"`
	UploadTimeISO8601 string `json:"upload_time_iso_8601"`
	Yanked            bool   `json:"yanked"`
}

func (r apiResponse) release() Release {
	urls := make(map[string]string, len(r.Info.ProjectURLs))
	for k, v := range r.Info.ProjectURLs {
		if s, ok := v.(string); ok && s != "" {
			urls[k] = s
		}
	}
	var uploaded *time.Time
	if len(r.URLs) > 0 {
		uploaded = parseUploadTime(r.URLs[0])
	}
	return Release{
		Name:              integrations.NormalizePkgName(r.Info.Name),
		DisplayName:       r.Info.Name,
		Version:           r.Info.Version,
		Summary:           r.Info.Summary,
		Description:       r.Info.Description,
		License:           r.Info.License,
		LicenseExpression: r.Info.LicenseExpression,
		Author:            r.Info.Author,
		AuthorEmail:       r.Info.AuthorEmail,
		Maintainer:        r.Info.Maintainer,
		MaintainerEmail:   r.Info.MaintainerEmail,
		HomePage:          r.Info.HomePage,
		Keywords:          r.Info.Keywords,
		Classifiers:       r.Info.Classifiers,
		RequiresDist:      r.Info.RequiresDist,
		ProjectURLs:       urls,
		UploadTime:        uploaded,
		Yanked:            r.Info.Yanked,
	}
}

func (r apiResponse) installableVersions() []string {
	var out []string
	for v, files := range r.Releases {
		if slices.ContainsFunc(files, func(f apiFile) bool { return !f.Yanked }) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// parseUploadTime prefers the ISO 8601 field (with zone) over the legacy
// naive timestamp, which PyPI emits in UTC.
func parseUploadTime(f apiFile) *time.Time {
	if f.UploadTimeISO8601 != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.UploadTimeISO8601); err == nil {
			return &t
		}
	}
	if f.UploadTime != "" {
		if t, err := time.ParseInLocation("2006-01-02T15:04:05", f.UploadTime, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

// Requirement is one parsed requires_dist entry.
type Requirement struct {
	Name      string   // normalized project name
	Extras    []string // requested extras, e.g. [security]
	Specifier string   // version specifier, e.g. ">=2.0,<3"
	Marker    string   // environment marker after ';'
}

// Extra reports whether the requirement is only installed with an extra.
func (r Requirement) Extra() bool {
	return extraMarkerRE.MatchString(r.Marker)
}

var (
	reqNameRE     = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[([^\]]*)\])?\s*(.*)$`)
	extraMarkerRE = regexp.MustCompile(`\bextra\s*==`)
)

// ParseRequirement parses a PEP 508 requirement string as found in
// requires_dist. Direct URL references ("name @ url") keep an empty
// specifier. ok is false when no project name can be found.
func ParseRequirement(s string) (Requirement, bool) {
	spec, marker, _ := strings.Cut(s, ";")
	m := reqNameRE.FindStringSubmatch(spec)
	if m == nil {
		return Requirement{}, false
	}
	req := Requirement{
		Name:   integrations.NormalizePkgName(m[1]),
		Marker: strings.TrimSpace(marker),
	}
	if m[2] != "" {
		for _, e := range strings.Split(m[2], ",") {
			if e = strings.TrimSpace(e); e != "" {
				req.Extras = append(req.Extras, strings.ToLower(e))
			}
		}
	}
	rest := strings.TrimSpace(m[3])
	if strings.HasPrefix(rest, "@") {
		return req, true
	}
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	req.Specifier = strings.ReplaceAll(rest, " ", "")
	return req, true
}
