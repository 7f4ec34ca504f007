package message

import (
	"testing"

	"github.com/germanamz/shorts/pkg/chats/content"
	"github.com/germanamz/shorts/pkg/chats/role"
	"github.com/stretchr/testify/assert"
)

func TestNewText(t *testing.T) {
	msg := NewText("scriptwriter_agent", role.Assistant, "HOOK: ...")

	assert.Equal(t, "scriptwriter_agent", msg.Sender)
	assert.Equal(t, role.Assistant, msg.Role)
	assert.Len(t, msg.Parts, 1)
	assert.Equal(t, "HOOK: ...", msg.TextContent())
}

func TestMessage_TextContent_SkipsToolCalls(t *testing.T) {
	msg := New("a", role.Assistant,
		content.Text{Text: "Let me look "},
		content.ToolCall{ID: "c1", Name: "web_search", Arguments: "{}"},
		content.Text{Text: "that up."},
	)

	assert.Equal(t, "Let me look that up.", msg.TextContent())
}

func TestMessage_ToolCalls(t *testing.T) {
	msg := New("a", role.Assistant,
		content.ToolCall{ID: "c1", Name: "web_search"},
		content.Text{Text: "x"},
		content.ToolCall{ID: "c2", Name: "state_get"},
	)

	calls := msg.ToolCalls()
	assert.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "state_get", calls[1].Name)

	assert.Empty(t, NewText("a", role.User, "hi").ToolCalls())
}
