// Package metadata enriches graph packages with registry data.
//
// The [Enricher] reads the PyPI release of each package (falling back to
// the project's latest release when the exact version is gone), resolves
// its license through the [license.Validator] cascade and, only when PyPI
// yields no recognizable license, asks the code host (GitHub, then GitLab)
// for the repository license.
//
// Enrichment never mutates its input: [Enricher.Enrich] returns a new
// [graph.Package] that the caller merges back into the graph. Every lookup
// failure is non-fatal; rate limits and missing repositories simply skip
// that cascade step.
package metadata
