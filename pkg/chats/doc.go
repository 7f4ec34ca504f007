// Package chats holds the provider-neutral conversation model shared by the
// agents and the model adapters.
//
//   - [github.com/germanamz/shorts/pkg/chats/role]: who sent a message
//   - [github.com/germanamz/shorts/pkg/chats/content]: text, tool call and tool result parts
//   - [github.com/germanamz/shorts/pkg/chats/message]: a role plus its parts
//   - [github.com/germanamz/shorts/pkg/chats/chat]: an ordered conversation
//
// Nothing here talks to a provider. Adapters translate these types into
// their own wire formats.
package chats
