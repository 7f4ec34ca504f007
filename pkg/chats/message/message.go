// Package message defines a single conversation message.
package message

import (
	"strings"

	"github.com/germanamz/shorts/pkg/chats/content"
	"github.com/germanamz/shorts/pkg/chats/role"
)

// Message is one turn of a conversation. It is a value type.
type Message struct {
	Sender string
	Role   role.Role
	Parts  []content.Part
	Model  string // Model that produced an assistant reply, when known.
}

// New creates a message from parts.
func New(sender string, r role.Role, parts ...content.Part) Message {
	return Message{Sender: sender, Role: r, Parts: parts}
}

// NewText creates a message holding a single text part.
func NewText(sender string, r role.Role, text string) Message {
	return New(sender, r, content.Text{Text: text})
}

// TextContent concatenates all text parts.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(content.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool call parts in order.
func (m Message) ToolCalls() []content.ToolCall {
	var calls []content.ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(content.ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}
