package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	gh "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/matzehuels/stackaudit/pkg/cache"
	apperrors "github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/integrations"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

var repoURLPattern = regexp.MustCompile(`https?://github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:[/?#]|$)`)

// License is the license GitHub detected for a repository.
type License struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	SPDXID string `json:"spdx_id"`
}

// Identifier returns the most specific usable identifier: key, then SPDX
// ID, then name. GitHub's placeholders for unknown licenses are skipped.
func (l License) Identifier() string {
	for _, s := range []string{l.Key, l.SPDXID, l.Name} {
		switch strings.ToLower(s) {
		case "", "other", "noassertion":
			continue
		}
		return s
	}
	return ""
}

// Client provides access to the GitHub REST API for license lookups.
// Responses are cached and transient failures retried through the shared
// integrations client.
type Client struct {
	*integrations.Client
	gh *gh.Client
}

// NewClient creates a GitHub API client with optional authentication.
// Pass an empty token for unauthenticated requests (lower rate limits) and
// an empty baseURL for api.github.com.
func NewClient(c cache.Cache, cacheTTL time.Duration, token, baseURL string, opts ...integrations.Option) (*Client, error) {
	transport := http.RoundTripper(integrations.NewTransport(nil))
	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		}
	}
	client := gh.NewClient(&http.Client{Timeout: 10 * time.Second, Transport: transport})

	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "invalid GitHub base URL %q", baseURL)
		}
		client.BaseURL = u
	}

	return &Client{
		Client: integrations.NewClient(c, "github", cacheTTL, nil, opts...),
		gh:     client,
	}, nil
}

// License returns the license GitHub detected for owner/repo.
// A repository without a detectable license yields [integrations.ErrNotFound].
func (c *Client) License(ctx context.Context, owner, repo string, refresh bool) (*License, error) {
	if err := ValidateRepoRef(owner, repo); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "github repo %s/%s", owner, repo)
	}

	var lic License
	err := c.Cached(ctx, "license:"+strings.ToLower(owner+"/"+repo), refresh, &lic, func(ctx context.Context) error {
		rl, resp, err := c.gh.Repositories.License(ctx, owner, repo)
		if err != nil {
			return classify(ctx, err, resp)
		}
		l := rl.GetLicense()
		lic = License{Key: l.GetKey(), Name: l.GetName(), SPDXID: l.GetSPDXID()}
		return nil
	})
	if err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: github license %s/%s", err, owner, repo)
		}
		return nil, err
	}
	return &lic, nil
}

// classify maps go-github errors onto the integrations error sentinels so
// the retry executor and callers treat them like any other registry error.
func classify(ctx context.Context, err error, resp *gh.Response) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		wait := max(int(time.Until(rle.Rate.Reset.Time).Seconds()), 0)
		return fmt.Errorf("%w: %w", integrations.ErrRateLimited,
			&apperrors.RateLimitedError{RetryAfter: wait, Message: rle.Message})
	}
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		wait := 0
		if abuse.RetryAfter != nil {
			wait = int(abuse.RetryAfter.Seconds())
		}
		return fmt.Errorf("%w: %w", integrations.ErrRateLimited,
			&apperrors.RateLimitedError{RetryAfter: wait, Message: abuse.Message})
	}

	if resp != nil && resp.Response != nil {
		if cerr := integrations.CheckResponse(resp.Response); cerr != nil {
			return cerr
		}
	}
	return retry.Retryable(fmt.Errorf("%w: %v", integrations.ErrNetwork, err))
}

// ExtractURL finds a GitHub owner/repo in package URLs, falling back to
// the homepage.
func ExtractURL(urls map[string]string, homepage string) (owner, repo string, ok bool) {
	return integrations.ExtractRepoURL(repoURLPattern, urls, homepage)
}

// ParseRepoURL extracts owner and repo from a single GitHub URL.
func ParseRepoURL(u string) (owner, repo string, ok bool) {
	m := repoURLPattern.FindStringSubmatch(u)
	if len(m) < 3 {
		return "", "", false
	}
	return m[1], m[2], true
}
