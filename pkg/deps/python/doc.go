// Package python provides the Python resolution backends and manifest
// readers.
//
// [PyPIBackend] crawls the PyPI JSON API with a bounded worker pool and
// pins each requirement with [SelectVersion]. [PipgripBackend] delegates
// to the pipgrip CLI and parses its --tree-json-exact output with
// [ParseTree], keeping pipgrip's ordering.
//
// [Requirements] and [PoetryLock] turn local manifests into root specs for
// the resolver.
package python
