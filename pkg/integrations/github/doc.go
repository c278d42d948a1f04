// Package github looks up repository licenses through the GitHub REST API.
//
// It is the secondary license source used by metadata enrichment when a
// PyPI release carries no recognizable license. Requests go through
// go-github with an optional token (oauth2 static token source) and share
// caching, retries and error classification with the other integrations:
// primary and secondary rate limits become [integrations.ErrRateLimited]
// and are never retried.
//
//	client, err := github.NewClient(c, 24*time.Hour, os.Getenv("GITHUB_TOKEN"), "")
//	lic, err := client.License(ctx, "pallets", "flask", false)
//	fmt.Println(lic.Identifier()) // "bsd-3-clause"
package github
