// Package pypi provides an HTTP client for the Python Package Index JSON API.
//
// # Usage
//
//	client := pypi.NewClient(c, 24*time.Hour, "")
//	rel, err := client.FetchRelease(ctx, "flask", "3.0.0", false)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(rel.Name, rel.Version, rel.UploadTime)
//
// [Client.FetchRelease] reads /pypi/{name}/{version}/json and falls back to
// the project endpoint when PyPI has no such version. [Client.FetchProject]
// also lists installable versions, which the native resolver uses to pick
// versions against PEP 440 specifiers.
//
// # Requirements
//
// [ParseRequirement] splits a requires_dist entry into name, extras,
// specifier and environment marker. Names are normalized following PEP 503.
package pypi
