// Package config loads stackaudit settings from a TOML file, an optional
// .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/matzehuels/stackaudit/pkg/approval"
	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/errors"
)

// Config is the complete runtime configuration.
type Config struct {
	Cache    CacheConfig     `toml:"cache"`
	Approval approval.Policy `toml:"policy"`
	API      APIConfig       `toml:"api"`
	Report   ReportConfig    `toml:"report"`
	Resolver ResolverConfig  `toml:"resolver"`
	Log      LogConfig       `toml:"log"`
	Server   ServerConfig    `toml:"server"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Enabled   bool   `toml:"enabled"`
	Backend   string `toml:"backend"`
	Directory string `toml:"directory"`
	TTLHours  int    `toml:"ttl_hours"`
	Compress  bool   `toml:"compress"`
	RedisURL  string `toml:"redis_url"`
}

// TTL returns the HTTP cache TTL.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// APIConfig holds registry endpoints and client limits.
type APIConfig struct {
	GitHubToken   string        `toml:"github_token"`
	GitLabToken   string        `toml:"gitlab_token"`
	PyPIBaseURL   string        `toml:"pypi_base_url"`
	GitHubBaseURL string        `toml:"github_base_url"`
	GitLabBaseURL string        `toml:"gitlab_base_url"`
	OSVBaseURL    string        `toml:"osv_base_url"`
	Timeout       time.Duration `toml:"timeout"`
	MaxRetries    int           `toml:"max_retries"`
	RateLimit     float64       `toml:"rate_limit"` // requests per second per registry, 0 = unlimited
}

// ReportConfig controls where results go.
type ReportConfig struct {
	OutputPath    string `toml:"output_path"`
	Format        string `toml:"format"`
	ArchiveDir    string `toml:"archive_dir"`
	MongoURI      string `toml:"mongodb_uri"`
	MongoDatabase string `toml:"mongodb_database"`
}

// ResolverConfig selects the dependency resolver.
type ResolverConfig struct {
	Backend     string        `toml:"backend"`
	Concurrency int           `toml:"concurrency"`
	Timeout     time.Duration `toml:"timeout"`
	Pipgrip     string        `toml:"pipgrip"`
}

// LogConfig controls the logger built by the front ends.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig configures `stackaudit serve`.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Resolver backends.
const (
	ResolverPyPI    = "pypi"
	ResolverPipgrip = "pipgrip"
)

// Log formats.
const (
	LogFormatText   = "text"
	LogFormatJSON   = "json"
	LogFormatLogfmt = "logfmt"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:  true,
			Backend:  cache.BackendFile,
			TTLHours: 24,
		},
		Approval: approval.DefaultPolicy(),
		API: APIConfig{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Report: ReportConfig{
			OutputPath: "analysis_result.json",
			Format:     "json",
		},
		Resolver: ResolverConfig{
			Backend:     ResolverPyPI,
			Concurrency: 8,
			Timeout:     300 * time.Second,
			Pipgrip:     "pipgrip",
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load builds the configuration. An empty path reads [DefaultPath] if it
// exists; a non-empty path must exist. A .env file in the working
// directory is loaded without overriding variables already set, then the
// environment is applied and the result validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	required := path != ""
	if path == "" {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := cfg.decodeFile(path, required); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load .env")
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	return nil
}

var (
	cacheBackends = []string{cache.BackendFile, cache.BackendMemory, cache.BackendRedis, cache.BackendSQLite, cache.BackendNone}
	reportFormats = []string{"json", "yaml"}
	resolvers     = []string{ResolverPyPI, ResolverPipgrip}
	logFormats    = []string{LogFormatText, LogFormatJSON, LogFormatLogfmt}
)

// Validate checks enumerations and ranges and normalizes the policy.
func (c *Config) Validate() error {
	if c.Cache.Enabled && !slices.Contains(cacheBackends, c.Cache.Backend) {
		return invalid("cache backend %q (one of %v)", c.Cache.Backend, cacheBackends)
	}
	if c.Cache.Backend == cache.BackendRedis && c.Cache.Enabled && c.Cache.RedisURL == "" {
		return invalid("redis cache requires REDIS_URL")
	}
	if c.Cache.TTLHours <= 0 {
		return invalid("cache ttl must be positive, got %d hours", c.Cache.TTLHours)
	}
	if c.Report.Format == "yml" {
		c.Report.Format = "yaml"
	}
	if !slices.Contains(reportFormats, c.Report.Format) {
		return invalid("report format %q (one of %v)", c.Report.Format, reportFormats)
	}
	if !slices.Contains(resolvers, c.Resolver.Backend) {
		return invalid("dependency resolver %q (one of %v)", c.Resolver.Backend, resolvers)
	}
	if c.Resolver.Concurrency <= 0 {
		return invalid("resolver concurrency must be positive, got %d", c.Resolver.Concurrency)
	}
	if c.Resolver.Timeout <= 0 {
		return invalid("resolver timeout must be positive, got %s", c.Resolver.Timeout)
	}
	if c.API.Timeout <= 0 {
		return invalid("api timeout must be positive, got %s", c.API.Timeout)
	}
	if c.API.MaxRetries < 1 {
		return invalid("api max retries must be at least 1, got %d", c.API.MaxRetries)
	}
	if c.API.RateLimit < 0 {
		return invalid("api rate limit must not be negative, got %g", c.API.RateLimit)
	}
	for _, base := range [...]struct{ env, url string }{
		{"PYPI_BASE_URL", c.API.PyPIBaseURL},
		{"OSV_BASE_URL", c.API.OSVBaseURL},
		{"GITHUB_BASE_URL", c.API.GitHubBaseURL},
		{"GITLAB_BASE_URL", c.API.GitLabBaseURL},
	} {
		if base.url == "" {
			continue
		}
		if err := errors.ValidateURL(base.url); err != nil {
			return invalid("%s: %s", base.env, errors.UserMessage(err))
		}
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return invalid("log format %q (one of %v)", c.Log.Format, logFormats)
	}
	if _, err := c.LogLevel(); err != nil {
		return invalid("log level %q", c.Log.Level)
	}
	return c.Approval.Validate()
}

// Policy returns a copy of the approval policy.
func (c *Config) Policy() approval.Policy {
	p := c.Approval
	p.BlockedLicenses = slices.Clone(c.Approval.BlockedLicenses)
	return p
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidConfig, "invalid configuration: %s", fmt.Sprintf(format, args...))
}
