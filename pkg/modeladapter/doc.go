// Package modeladapter is the shared HTTP layer under every model backend.
//
// It contains:
//   - [Completer], the conversation-level interface agents drive on the default path
//   - [ModelAdapter], an embeddable base with auth, extra headers, JSON POST and usage tracking
//   - [RateLimitedCompleter], request/token throttling with 429 backoff for a Completer
//   - [github.com/germanamz/shorts/pkg/modeladapter/usage], a concurrency-safe token counter
//
// Provider-specific request and response shapes live in the packages under
// pkg/providers.
package modeladapter
