// Package openrouter is the adapter client for the OpenRouter chat
// completions API, the alternate backend selected by "openrouter:" model
// identifiers.
//
// A Client is built once from an immutable [Config] and then shared. Its
// generation calls never return Go errors: failures come back inside the
// tagged [Text] and [Result] values, whose content reads "Error: ..." and
// whose Err field carries the cause, so callers can branch on Failed()
// instead of matching strings.
//
// The adapter does not loop on tool calls. [Client.GenerateTextWithTools]
// reports the calls the model asked for; the caller runs them, folds their
// output into a follow-up prompt with [FollowUpPrompt] and calls
// [Client.GenerateText] once more.
package openrouter
