package integrations

import (
	"errors"
	"maps"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

const httpTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when a package or resource doesn't exist in the registry.
	ErrNotFound = errors.New("not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")

	// ErrRateLimited is returned for 429 responses and for 403 responses
	// whose rate-limit quota is exhausted. It is never retried.
	ErrRateLimited = errors.New("rate limited")
)

// IsRateLimited reports whether err is a rate-limit response.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// NewHTTPClient creates an HTTP client with a standard timeout for registry requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// NewHTTPClientWithTimeout creates an HTTP client with the given timeout.
// A non-positive timeout uses the 10s default.
func NewHTTPClientWithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = httpTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NormalizePkgName converts a package name to its canonical form.
// Applies lowercase and replaces underscores and dots with hyphens,
// following PEP 503 normalization rules used by PyPI.
func NormalizePkgName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return pkgNameReplacer.Replace(s)
}

var pkgNameReplacer = strings.NewReplacer("_", "-", ".", "-")

var repoURLReplacer = strings.NewReplacer(
	"git@github.com:", "https://github.com/",
	"git://github.com/", "https://github.com/",
	"git@gitlab.com:", "https://gitlab.com/",
)

// NormalizeRepoURL converts various repository URL formats to canonical HTTPS form.
// Handles git@, git://, and git+ prefixes, and removes .git suffixes and
// trailing slashes. Returns empty string if raw is empty.
func NormalizeRepoURL(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "git+")
	s = repoURLReplacer.Replace(s)
	s = strings.TrimSuffix(s, "/")
	return strings.TrimSuffix(s, ".git")
}

var repoURLKeys = []string{"Source", "Source Code", "Repository", "Code", "Homepage"}

// ExtractRepoURL finds owner and repo from package URLs.
// It searches through urls using standard keys (Source, Repository, Code, Homepage)
// and falls back to homepage if no match is found. The re parameter should match
// URLs and capture owner (group 1) and repo name (group 2).
// Returns ok=false if no valid repository URL is found.
func ExtractRepoURL(re *regexp.Regexp, urls map[string]string, homepage string) (owner, repo string, ok bool) {
	match := func(u string) bool {
		if strings.Contains(u, "/sponsors/") {
			return false
		}
		if m := re.FindStringSubmatch(u); len(m) >= 3 {
			owner = m[1]
			repo = strings.TrimSuffix(m[2], ".git")
			ok = true
			return true
		}
		return false
	}

	for _, key := range repoURLKeys {
		if u, exists := urls[key]; exists && match(u) {
			return
		}
	}
	for _, key := range slices.Sorted(maps.Keys(urls)) {
		if match(urls[key]) {
			return
		}
	}
	if homepage != "" {
		match(homepage)
	}
	return
}

// PathEscape percent-encodes a single path segment.
func PathEscape(s string) string { return url.PathEscape(s) }
