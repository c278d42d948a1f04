package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	gl "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/matzehuels/stackaudit/pkg/cache"
	apperrors "github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/integrations"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

// DefaultBaseURL is the gitlab.com API root.
const DefaultBaseURL = "https://gitlab.com"

// Groups may nest; the "/-/" separator GitLab puts before tree and blob
// paths never matches a segment.
var repoURLPattern = regexp.MustCompile(`https?://gitlab\.com/((?:[\w.][\w.-]*/)*[\w.][\w.-]*)/([\w.][\w.-]*?)(?:\.git)?(?:[/?#]|$)`)

// License is the license GitLab detected for a project.
type License struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
}

// Identifier returns the license name, falling back to nickname and key.
func (l License) Identifier() string {
	for _, s := range []string{l.Name, l.Nickname, l.Key} {
		if s != "" && !strings.EqualFold(s, "other") {
			return s
		}
	}
	return ""
}

// Client provides access to the GitLab API for project license lookups.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	gl *gl.Client
}

// NewClient creates a GitLab API client with optional authentication.
//
// Parameters:
//   - c: Cache backend for response caching (nil disables caching)
//   - cacheTTL: How long responses are cached (typical: 1-24 hours)
//   - token: GitLab personal access token (empty string for unauthenticated)
//   - baseURL: GitLab instance URL; empty uses [DefaultBaseURL]
//
// Retries and rate limiting are handled by the integrations client, so the
// SDK's own retry loop is disabled.
func NewClient(c cache.Cache, cacheTTL time.Duration, token, baseURL string, opts ...integrations.Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client, err := gl.NewClient(token,
		gl.WithBaseURL(baseURL),
		gl.WithHTTPClient(&http.Client{Timeout: 10 * time.Second, Transport: integrations.NewTransport(nil)}),
		gl.WithoutRetries(),
		gl.WithCustomLimiter(rate.NewLimiter(rate.Inf, 0)),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "invalid GitLab base URL %q", baseURL)
	}
	return &Client{
		Client: integrations.NewClient(c, "gitlab", cacheTTL, nil, opts...),
		gl:     client,
	}, nil
}

// License returns the detected license of the project at path
// (e.g. "gitlab-org/gitlab-runner"). A project without a license yields
// [integrations.ErrNotFound].
func (c *Client) License(ctx context.Context, path string, refresh bool) (*License, error) {
	path = strings.Trim(path, "/")
	if path == "" || strings.Contains(path, "..") {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid gitlab project path %q", path)
	}

	var lic License
	err := c.Cached(ctx, "license:"+strings.ToLower(path), refresh, &lic, func(ctx context.Context) error {
		p, resp, err := c.gl.Projects.GetProject(path, &gl.GetProjectOptions{License: gl.Ptr(true)}, gl.WithContext(ctx))
		if err != nil {
			return classify(ctx, err, resp)
		}
		if p.License == nil {
			return integrations.ErrNotFound
		}
		lic = License{Key: p.License.Key, Name: p.License.Name, Nickname: p.License.Nickname}
		return nil
	})
	if err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: gitlab license %s", err, path)
		}
		return nil, err
	}
	return &lic, nil
}

func classify(ctx context.Context, err error, resp *gl.Response) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if resp != nil && resp.Response != nil {
		if cerr := integrations.CheckResponse(resp.Response); cerr != nil {
			return cerr
		}
	}
	return retry.Retryable(fmt.Errorf("%w: %v", integrations.ErrNetwork, err))
}

// ExtractURL extracts a GitLab project path from package URLs.
//
// This function searches through urls map and homepage for GitLab URLs.
// Nested groups are kept in owner ("group/subgroup").
//
// This function is safe for concurrent use.
func ExtractURL(urls map[string]string, homepage string) (owner, repo string, ok bool) {
	return integrations.ExtractRepoURL(repoURLPattern, urls, homepage)
}
