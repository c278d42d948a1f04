package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// LookupFunc reads one environment variable, like [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides c with the environment variables that are set.
// Durations accept Go syntax ("10s") or a plain number of seconds.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.bool("CACHE_ENABLED", &c.Cache.Enabled)
	e.str("CACHE_BACKEND", &c.Cache.Backend)
	e.str("CACHE_DIRECTORY", &c.Cache.Directory)
	e.int("CACHE_TTL_HOURS", &c.Cache.TTLHours)
	e.bool("CACHE_COMPRESS", &c.Cache.Compress)
	e.str("REDIS_URL", &c.Cache.RedisURL)

	e.int("MAINTAINED_YEARS", &c.Approval.MaintainabilityYears)
	e.list("BLOCKED_LICENSES", &c.Approval.BlockedLicenses)
	if v, ok := e.get("MAX_VULNERABILITY_SEVERITY"); ok {
		c.Approval.MaxSeverity = vuln.Severity(v)
	}
	e.str("POLICY_NAME", &c.Approval.Name)

	e.str("GITHUB_TOKEN", &c.API.GitHubToken)
	e.str("GITLAB_TOKEN", &c.API.GitLabToken)
	e.str("PYPI_BASE_URL", &c.API.PyPIBaseURL)
	e.str("GITHUB_BASE_URL", &c.API.GitHubBaseURL)
	e.str("GITLAB_BASE_URL", &c.API.GitLabBaseURL)
	e.str("OSV_BASE_URL", &c.API.OSVBaseURL)
	e.duration("API_REQUEST_TIMEOUT", &c.API.Timeout)
	e.int("API_MAX_RETRIES", &c.API.MaxRetries)
	e.float("API_RATE_LIMIT", &c.API.RateLimit)

	e.str("REPORT_OUTPUT_PATH", &c.Report.OutputPath)
	e.str("REPORT_FORMAT", &c.Report.Format)
	e.str("REPORT_ARCHIVE_DIR", &c.Report.ArchiveDir)
	e.str("MONGODB_URI", &c.Report.MongoURI)
	e.str("MONGODB_DATABASE", &c.Report.MongoDatabase)

	e.str("DEPENDENCY_RESOLVER", &c.Resolver.Backend)
	e.int("RESOLVER_CONCURRENCY", &c.Resolver.Concurrency)
	e.duration("RESOLVER_TIMEOUT", &c.Resolver.Timeout)
	e.str("PIPGRIP_COMMAND", &c.Resolver.Pipgrip)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)
	e.str("SERVER_ADDR", &c.Server.Addr)

	if e.err != nil {
		return invalid("%v", e.err)
	}
	return nil
}

// envReader records the first parse failure so ApplyEnv can read every
// variable in a straight line.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(key, v, kind string) {
	if e.err == nil {
		e.err = &envError{key: key, value: v, kind: kind}
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, "boolean")
			return
		}
		*dst = b
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, "integer")
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, "number")
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(secs * float64(time.Second))
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, "duration")
			return
		}
		*dst = d
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}

type envError struct {
	key, value, kind string
}

func (e *envError) Error() string {
	return e.key + "=" + strconv.Quote(e.value) + " is not a valid " + e.kind
}
