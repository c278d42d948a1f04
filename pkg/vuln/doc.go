// Package vuln scans pinned Python requirements for known vulnerabilities.
//
// [OSVScanner] queries OSV.dev in batches of up to 100 packages, falls back
// to one query per package when a batch fails, and hydrates every reported
// ID into a [Record] with a normalized [Severity] and the first fixed
// version for the scanned release.
//
//	scanner := vuln.NewOSVScanner(osv.NewClient(c, ttl, ""), vuln.WithLogger(logger))
//	records, err := scanner.Scan(ctx, "requests==2.19.0\nflask==0.12\n")
//	for key, rs := range records {
//	    fmt.Println(key, len(rs)) // requests@2.19.0 4
//	}
//
// Results are keyed by "name@version" with PEP 503 normalized names, the
// same key the dependency graph uses.
package vuln
