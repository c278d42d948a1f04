package config

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/integrations"
	"github.com/matzehuels/stackaudit/pkg/integrations/github"
	"github.com/matzehuels/stackaudit/pkg/integrations/gitlab"
	"github.com/matzehuels/stackaudit/pkg/integrations/osv"
	"github.com/matzehuels/stackaudit/pkg/integrations/pypi"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

// LogLevel parses the configured level.
func (c *Config) LogLevel() (log.Level, error) {
	return log.ParseLevel(c.Log.Level)
}

// NewLogger builds the front-end logger writing to w.
func (c *Config) NewLogger(w io.Writer) *log.Logger {
	level, err := c.LogLevel()
	if err != nil {
		level = log.InfoLevel
	}
	formatter := log.TextFormatter
	switch c.Log.Format {
	case LogFormatJSON:
		formatter = log.JSONFormatter
	case LogFormatLogfmt:
		formatter = log.LogfmtFormatter
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
		Formatter:       formatter,
	})
}

// OpenCache opens the configured backend. A disabled cache is a
// [cache.NullCache].
func (c *Config) OpenCache(ctx context.Context) (cache.Cache, error) {
	if !c.Cache.Enabled || c.Cache.Backend == cache.BackendNone {
		return cache.NewNullCache(), nil
	}
	opts := cache.Options{
		Backend:  c.Cache.Backend,
		RedisURL: c.Cache.RedisURL,
		Compress: c.Cache.Compress,
	}
	if c.Cache.Backend == cache.BackendFile || c.Cache.Backend == cache.BackendSQLite {
		dir, err := c.CacheDir()
		if err != nil {
			return nil, err
		}
		opts.Dir = dir
	}
	return cache.Open(ctx, opts)
}

// Retry returns an executor allowing API.MaxRetries attempts.
func (c *Config) Retry(logger *log.Logger) *retry.Executor {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.API.MaxRetries
	return retry.New(p, logger)
}

// ClientOptions are the shared options for every registry client.
func (c *Config) ClientOptions(logger *log.Logger) []integrations.Option {
	burst := int(c.API.RateLimit)
	return []integrations.Option{
		integrations.WithHTTPClient(integrations.NewHTTPClientWithTimeout(c.API.Timeout)),
		integrations.WithRetry(c.Retry(logger)),
		integrations.WithRateLimit(c.API.RateLimit, max(burst, 1)),
		integrations.WithLogger(logger),
	}
}

// Clients bundles the registry clients built from one configuration.
type Clients struct {
	PyPI   *pypi.Client
	OSV    *osv.Client
	GitHub *github.Client
	GitLab *gitlab.Client
}

// NewClients builds every registry client on top of ch.
func (c *Config) NewClients(ch cache.Cache, logger *log.Logger) (*Clients, error) {
	opts := c.ClientOptions(logger)
	ttl := c.Cache.TTL()

	gh, err := github.NewClient(ch, ttl, c.API.GitHubToken, c.API.GitHubBaseURL, opts...)
	if err != nil {
		return nil, err
	}
	gl, err := gitlab.NewClient(ch, ttl, c.API.GitLabToken, c.API.GitLabBaseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Clients{
		PyPI:   pypi.NewClient(ch, ttl, c.API.PyPIBaseURL, opts...),
		OSV:    osv.NewClient(ch, cache.TTLVuln, c.API.OSVBaseURL, opts...),
		GitHub: gh,
		GitLab: gl,
	}, nil
}
