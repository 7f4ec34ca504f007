// Package router decides which backend a model identifier belongs to.
//
// Identifiers tagged with the "openrouter:" prefix are served by the
// OpenRouter adapter; everything else takes the default provider.
package router

import "strings"

// Tag marks a model identifier as belonging to OpenRouter.
const Tag = "openrouter:"

// IsRedirected reports whether id carries the OpenRouter tag.
func IsRedirected(id string) bool {
	return strings.HasPrefix(id, Tag)
}

// StripTag returns id without the OpenRouter tag. Untagged identifiers are
// returned unchanged. A repeated tag is removed entirely so that
// StripTag(StripTag(id)) == StripTag(id) for every id.
func StripTag(id string) string {
	for strings.HasPrefix(id, Tag) {
		id = id[len(Tag):]
	}
	return id
}
