package deps

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

const (
	DefaultConcurrency = 8                 // Parallel resolutions
	DefaultTimeout     = 300 * time.Second // Per-spec resolution timeout
	DefaultMaxDepth    = 50                // Maximum dependency depth
	DefaultMaxNodes    = 5000              // Maximum packages per tree
)

// Unknown is the version recorded for a spec that could not be resolved.
const Unknown = "unknown"

// Backend resolves one root spec into its nested dependency tree.
type Backend interface {
	// Name returns the backend identifier (e.g., "pypi", "pipgrip").
	// It is part of the resolution cache key.
	Name() string
	// Resolve returns the tree rooted at spec with exact versions.
	Resolve(ctx context.Context, spec Spec) (*graph.RawNode, error)
}

// Options configures a Resolver.
type Options struct {
	Concurrency int           // Parallel resolutions (default: 8)
	Timeout     time.Duration // Per-spec timeout (default: 300s)
	CacheTTL    time.Duration // Resolution cache duration (default: 1h)
	Refresh     bool          // Bypass cached trees
	Cache       cache.Cache   // Tree cache (nil disables caching)
	Keyer       cache.Keyer   // Cache key construction (default: cache.DefaultKeyer)
	Retry       *retry.Executor
	Logger      *log.Logger
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.TTLResolve
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Retry == nil {
		opts.Retry = retry.New(retry.DefaultPolicy(), opts.Logger)
	}
	return opts
}
