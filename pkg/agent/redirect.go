package agent

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/germanamz/shorts/pkg/chats/content"
	"github.com/germanamz/shorts/pkg/providers/openrouter"
	"github.com/germanamz/shorts/pkg/providers/router"
	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

// Generator is the redirected provider. *openrouter.Client implements it.
type Generator interface {
	GenerateText(ctx context.Context, prompt, system string, opts ...openrouter.CallOption) openrouter.Text
	GenerateTextWithTools(ctx context.Context, prompt string, tools []toolbox.Tool, system string, opts ...openrouter.CallOption) openrouter.Result
}

var _ Generator = (*openrouter.Client)(nil)

// redirect runs the two-round tool protocol. Without tools it is a single
// GenerateText call.
func (a *Agent) redirect(ctx context.Context, system, prompt string) (Response, error) {
	model := router.StripTag(a.model)
	withModel := openrouter.WithModel(model)
	resp := Response{Model: model, Redirected: true}

	tools := a.Tools()
	if len(tools) == 0 {
		text := a.generator.GenerateText(ctx, prompt, system, withModel)
		if text.Failed() {
			return Response{}, fmt.Errorf("%w: %w", ErrGeneration, text.Err)
		}
		resp.Text = text.Content
		return resp, nil
	}

	first := a.generator.GenerateTextWithTools(ctx, prompt, tools, system, withModel)
	if first.Failed() {
		return Response{}, fmt.Errorf("%w: %w", ErrGeneration, first.Err)
	}

	if !first.WantsTools() {
		resp.Text = first.Content
		return resp, nil
	}

	a.log.DebugContext(ctx, "running requested tools", "count", len(first.ToolCalls))

	results := a.runTools(ctx, first.ToolCalls)

	second := a.generator.GenerateText(ctx, openrouter.FollowUpPrompt(prompt, results), system, withModel)
	if second.Failed() {
		return Response{}, fmt.Errorf("%w: %w", ErrGeneration, second.Err)
	}

	resp.Text = second.Content

	return resp, nil
}

// runTools executes calls concurrently and returns one line per call, in
// call order.
func (a *Agent) runTools(ctx context.Context, calls []content.ToolCall) []string {
	results := make([]string, len(calls))

	var g errgroup.Group
	if a.options.MaxParallel > 0 {
		g.SetLimit(a.options.MaxParallel)
	}

	for i, tc := range calls {
		g.Go(func() error {
			results[i] = a.formatToolResult(ctx, tc)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

// formatToolResult renders one tool outcome as "<name>: <output>",
// "<name>: Error - <err>" or "<name>: Tool not found".
func (a *Agent) formatToolResult(ctx context.Context, tc content.ToolCall) string {
	if !a.hasTool(tc.Name) {
		return tc.Name + ": Tool not found"
	}

	res := a.callTool(ctx, tc)
	if res.IsError {
		a.log.DebugContext(ctx, "tool failed", "tool", tc.Name, "error", res.Content)
		return tc.Name + ": Error - " + res.Content
	}

	return tc.Name + ": " + res.Content
}
