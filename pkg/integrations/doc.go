// Package integrations provides the shared HTTP client used by external API
// clients.
//
// # Overview
//
// The [Client] type wraps net/http with:
//   - static and per-request headers (see [HeaderFunc])
//   - retry with exponential backoff for transient failures
//   - JSON response caching via [cache.Cache]
//   - status mapping to [ErrNotFound], [ErrRateLimited], [ErrUnauthorized]
//     and [ErrNetwork]
//   - request metrics through the observability HTTP hooks
//
// The [github] subpackage builds on it to fetch repository context.
//
// [github]: github.com/easygithub/easygithub/pkg/integrations/github
// [cache.Cache]: github.com/easygithub/easygithub/pkg/cache.Cache
package integrations
