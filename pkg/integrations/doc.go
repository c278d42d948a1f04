// Package integrations provides HTTP clients for the external services a
// stackaudit run talks to.
//
// # Overview
//
// Each service has its own subpackage:
//
//   - [pypi]: Python Package Index JSON API (metadata, versions)
//   - [osv]: OSV.dev vulnerability API
//   - [github]: GitHub repository licenses
//   - [gitlab]: GitLab project licenses
//
// # Shared Infrastructure
//
// The [Client] type provides the HTTP plumbing every subpackage embeds:
//
//   - response caching through [cache.Cache] under [cache.Keyer] keys
//   - retries with exponential backoff through [retry.Executor]; only
//     network failures and 5xx responses are retried
//   - an optional token-bucket rate limiter
//   - error classification into [ErrNotFound], [ErrNetwork] and
//     [ErrRateLimited] (429, or 403 with an exhausted quota)
//   - request metrics through the observability HTTP hooks
//
// SDK-based clients (GitHub, GitLab) wrap their transports with
// [NewTransport] so their traffic reports to the same hooks.
//
// [pypi]: github.com/matzehuels/stackaudit/pkg/integrations/pypi
// [osv]: github.com/matzehuels/stackaudit/pkg/integrations/osv
// [github]: github.com/matzehuels/stackaudit/pkg/integrations/github
// [gitlab]: github.com/matzehuels/stackaudit/pkg/integrations/gitlab
// [cache.Cache]: github.com/matzehuels/stackaudit/pkg/cache.Cache
// [cache.Keyer]: github.com/matzehuels/stackaudit/pkg/cache.Keyer
// [retry.Executor]: github.com/matzehuels/stackaudit/pkg/retry.Executor
package integrations
