// Package pkg provides the core libraries for Stackaudit, a dependency
// audit for Python packages.
//
// # Overview
//
// Stackaudit resolves the complete dependency tree of one or more packages,
// scans every pinned version against OSV, enriches packages with license and
// repository metadata, and decides for each package whether it may be used
// under a policy. A package is rejected when it is vulnerable, unmaintained,
// blocked by its license, or depends (directly or transitively) on a rejected
// package.
//
// # Architecture
//
// The data flow of one run:
//
//	package specs / requirements.txt / poetry.lock
//	         ↓
//	    [deps] resolve trees (PyPI crawler or pipgrip)
//	         ↓
//	    [graph] merge trees into one package graph
//	         ↓
//	    [vuln] scan pins against OSV   [metadata] PyPI, GitHub, GitLab
//	         ↓
//	    [approval] two-pass policy evaluation
//	         ↓
//	    [report] result document, sinks (file, archive, MongoDB, Graphviz)
//
// [pipeline] wires these stages together and is shared by the CLI and the
// HTTP server.
//
// # Quick Start
//
//	cfg, _ := config.Load("")
//	runner, closeFn, _ := pipeline.FromConfig(ctx, cfg, logger, pipeline.WireOptions{})
//	defer closeFn()
//
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Packages: []string{"flask==2.0.0", "requests"},
//	})
//
// # Main Packages
//
// ## Domain
//
// [graph] - Package identities, the merged dependency graph and its JSON
// document form.
//
// [deps] - Spec parsing, manifest readers and the concurrent, cached tree
// resolver; [deps/python] holds the PyPI and pipgrip backends.
//
// [vuln] - OSV scanning with CVSS-based severity classification.
//
// [license] - SPDX license recognition and normalization.
//
// [metadata] - Enrichment from PyPI and source hosts.
//
// [approval] - Policy and the two-pass approval engine.
//
// [report] - Result assembly, encoders, the run archive and other sinks.
//
// ## Infrastructure
//
// [cache] - File, SQLite, Redis and in-memory caches with optional zstd
// compression.
//
// [integrations] - Rate-limited, retrying HTTP clients for PyPI, OSV, GitHub
// and GitLab.
//
// [retry] - Exponential backoff for transient failures.
//
// [config] - TOML, .env and environment configuration.
//
// [observability] - Hooks for metrics, with a Prometheus implementation.
//
// [errors] - Coded errors shared by the CLI and the HTTP API.
package pkg
