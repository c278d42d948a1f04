// Package osv is a client for the OSV.dev vulnerability API.
//
// It covers the three endpoints the scanner needs: /v1/querybatch for
// bulk ID lookups (at most [MaxBatchSize] queries per call), /v1/query as
// the per-package fallback, and /v1/vulns/{id} for full records, decoded
// into the osv-scanner schema types.
package osv
