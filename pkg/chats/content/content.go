// Package content holds the parts a message is built from.
package content

// Part is one piece of a message: Text, ToolCall or ToolResult.
type Part interface {
	part()
}

// Text is plain text.
type Text struct {
	Text string
}

// ToolCall is a model's request to run a tool. Arguments is the raw JSON
// text the provider sent; decoding it is the tool's job.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult is the output of one tool call, matched to it by ToolCallID.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
}

func (Text) part() {}
func (ToolCall) part() {}
func (ToolResult) part() {}
