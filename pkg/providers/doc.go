// Package providers holds the model backends.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/shorts/pkg/providers/router]: decides from a model identifier which backend serves it
//   - [github.com/germanamz/shorts/pkg/providers/gemini]: default provider, a [github.com/germanamz/shorts/pkg/modeladapter.Completer] over Gemini generateContent
//   - [github.com/germanamz/shorts/pkg/providers/openrouter]: OpenRouter chat-completion client with tagged results, used for identifiers tagged "openrouter:"
//
// Shared HTTP plumbing (auth, headers, usage tracking, rate limits) lives in
// [github.com/germanamz/shorts/pkg/modeladapter].
package providers
