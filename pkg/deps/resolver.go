package deps

import (
	"context"
	stderrors "errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/graph"
)

// Resolver turns a list of root specs into one dependency graph.
// Specs are resolved independently and in parallel; each fresh tree is
// cached under the backend name and the normalized spec.
type Resolver struct {
	backend Backend
	opts    Options
}

// NewResolver creates a Resolver over backend.
func NewResolver(backend Backend, opts Options) *Resolver {
	return &Resolver{backend: backend, opts: opts.WithDefaults()}
}

// Backend returns the resolution backend.
func (r *Resolver) Backend() Backend { return r.backend }

// Resolve validates specs, resolves every tree and builds the graph.
//
// Only two errors are returned: an input error ([errors.ErrCodeInvalidInput],
// [errors.ErrCodeInvalidSpec]) and [errors.ErrCodeResolutionFailed] when no
// spec could be resolved. Individual failures become "unknown" stubs.
func (r *Resolver) Resolve(ctx context.Context, specs []string) (*graph.Graph, error) {
	trees, err := r.Trees(ctx, specs)
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(trees)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResolutionFailed, err, "invalid dependency tree")
	}
	return g, nil
}

// Trees returns one raw tree per spec, in input order.
func (r *Resolver) Trees(ctx context.Context, specs []string) ([]graph.RawNode, error) {
	parsed, err := ParseSpecs(specs)
	if err != nil {
		return nil, err
	}

	trees := make([]graph.RawNode, len(parsed))
	errs := make([]error, len(parsed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, spec := range parsed {
		g.Go(func() error {
			if r.cached(gctx, spec, &trees[i]) {
				return nil
			}
			tree, err := r.resolveOne(gctx, spec)
			if err != nil {
				errs[i] = err
				trees[i] = stub(spec)
				r.opts.Logger.Warn("resolution failed", "spec", spec, "error", err)
				return nil
			}
			trees[i] = *tree
			r.store(ctx, spec, tree)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed := countErrors(errs); failed == len(parsed) {
		return nil, errors.Wrap(errors.ErrCodeResolutionFailed, stderrors.Join(errs...), "could not resolve any of %d packages", len(parsed))
	} else if failed > 0 {
		r.opts.Logger.Warn("partial resolution", "failed", failed, "total", len(parsed))
	}
	return trees, nil
}

func (r *Resolver) resolveOne(ctx context.Context, spec Spec) (*graph.RawNode, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var tree *graph.RawNode
	err := r.opts.Retry.Do(ctx, "resolve "+spec.String(), func(ctx context.Context) error {
		t, err := r.backend.Resolve(ctx, spec)
		if err != nil {
			return err
		}
		tree = t
		return nil
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrCodeTimeout, err, "resolving %s timed out after %s", spec, r.opts.Timeout)
		}
		return nil, err
	}
	if tree.Name == "" || tree.Version == "" {
		return nil, fmt.Errorf("%s: %w", spec, graph.ErrMissingVersion)
	}
	return tree, nil
}

func (r *Resolver) key(spec Spec) string {
	return r.opts.Keyer.ResolveKey(r.backend.Name(), spec.Key())
}

func (r *Resolver) cached(ctx context.Context, spec Spec, dst *graph.RawNode) bool {
	if r.opts.Refresh {
		return false
	}
	ok, err := cache.GetJSON(ctx, r.opts.Cache, r.key(spec), dst)
	if err != nil {
		r.opts.Logger.Debug("resolution cache read failed", "spec", spec, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if _, err := graph.Build([]graph.RawNode{*dst}); err != nil {
		r.opts.Logger.Debug("dropping unusable cached tree", "spec", spec, "error", err)
		_ = r.opts.Cache.Delete(context.WithoutCancel(ctx), r.key(spec))
		*dst = graph.RawNode{}
		return false
	}
	r.opts.Logger.Debug("resolution cache hit", "spec", spec)
	return true
}

func (r *Resolver) store(ctx context.Context, spec Spec, tree *graph.RawNode) {
	if err := cache.SetJSON(context.WithoutCancel(ctx), r.opts.Cache, r.key(spec), tree, r.opts.CacheTTL); err != nil {
		r.opts.Logger.Debug("resolution cache write failed", "spec", spec, "error", err)
	}
}

func stub(spec Spec) graph.RawNode {
	return graph.RawNode{Name: spec.Name, Version: Unknown}
}

func countErrors(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
