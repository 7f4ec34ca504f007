// Package toolbox holds the tool descriptor type and a named collection of
// tools that agents can declare to a model and dispatch calls into.
package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/germanamz/shorts/pkg/chats/content"
)

// ToolBox is a set of tools keyed by name. It is not safe for concurrent
// registration; Call may be used concurrently once registration is done.
type ToolBox struct {
	tools map[string]Tool
}

// New creates an empty ToolBox.
func New() *ToolBox {
	return &ToolBox{tools: make(map[string]Tool)}
}

// Register adds tools, replacing any with the same name. A tool that fails
// Validate is rejected and nothing after it is registered.
func (tb *ToolBox) Register(tools ...Tool) error {
	for _, t := range tools {
		if err := t.Validate(); err != nil {
			return err
		}
		tb.tools[t.Name] = t
	}
	return nil
}

// MustRegister is Register for statically known tools.
func (tb *ToolBox) MustRegister(tools ...Tool) *ToolBox {
	if err := tb.Register(tools...); err != nil {
		panic(err)
	}
	return tb
}

// Get returns the named tool.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	t, ok := tb.tools[name]
	return t, ok
}

// Merge copies every tool from other into tb.
func (tb *ToolBox) Merge(other *ToolBox) {
	for _, t := range other.tools {
		tb.tools[t.Name] = t
	}
}

// Len returns the number of tools.
func (tb *ToolBox) Len() int { return len(tb.tools) }

// Tools returns the tools sorted by name so provider requests are stable.
func (tb *ToolBox) Tools() []Tool {
	result := make([]Tool, 0, len(tb.tools))
	for _, t := range tb.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Call runs a tool call. A missing tool or a handler error yields a result
// with IsError set rather than a Go error.
func (tb *ToolBox) Call(ctx context.Context, tc content.ToolCall) content.ToolResult {
	t, ok := tb.tools[tc.Name]
	if !ok {
		return content.ToolResult{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    fmt.Sprintf("tool not found: %s", tc.Name),
			IsError:    true,
		}
	}

	args := json.RawMessage(tc.Arguments)
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		return content.ToolResult{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    err.Error(),
			IsError:    true,
		}
	}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    result,
	}
}
