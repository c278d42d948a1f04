// Package deps resolves requested Python packages into dependency trees.
//
// # Overview
//
// A request is a list of specs, each either a bare project name
// ("flask") or an exact pin ("flask==2.3.3"). Ranges, extras and anything
// that could reach a shell are rejected by [ParseSpec] before any work
// starts.
//
// The [Resolver] resolves every spec independently through a [Backend]:
//
//   - [python.PyPIBackend]: native crawler over the PyPI JSON API
//   - [python.PipgripBackend]: runs the pipgrip CLI
//
// Resolutions run in parallel (bounded by Options.Concurrency), each under
// its own timeout and through the retry executor. A spec that fails
// becomes a stub node with version "unknown"; only when every spec fails
// does [Resolver.Resolve] return an error coded
// [errors.ErrCodeResolutionFailed].
//
// # Caching
//
// Fresh trees are stored for an hour under
// Keyer.ResolveKey(backend, spec), so repeated runs over the same request
// skip resolution entirely. Options.Refresh bypasses the lookup.
//
//	r := deps.NewResolver(python.NewPyPIBackend(client), deps.Options{Cache: c})
//	g, err := r.Resolve(ctx, []string{"flask", "requests==2.31.0"})
//
// [python.PyPIBackend]: github.com/matzehuels/stackaudit/pkg/deps/python.PyPIBackend
// [python.PipgripBackend]: github.com/matzehuels/stackaudit/pkg/deps/python.PipgripBackend
// [errors.ErrCodeResolutionFailed]: github.com/matzehuels/stackaudit/pkg/errors.ErrCodeResolutionFailed
package deps
