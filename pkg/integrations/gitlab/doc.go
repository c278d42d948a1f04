// Package gitlab looks up project licenses through the GitLab API.
//
// It is the last VCS fallback of the license cascade, used for packages
// hosted on gitlab.com (or a self-managed instance via GITLAB_BASE_URL).
//
//	client, err := gitlab.NewClient(c, 24*time.Hour, token, "")
//	owner, repo, ok := gitlab.ExtractURL(rel.ProjectURLs, rel.HomePage)
//	if ok {
//	    lic, err := client.License(ctx, owner+"/"+repo, false)
//	}
package gitlab
