// Package agent provides the LLM agent the pipeline is made of. An agent has
// an instruction, a model identifier and toolboxes, and runs one of two ways
// depending on the model identifier:
//
//   - plain identifiers run a ReAct loop (reason + act) over a
//     modeladapter.Completer, the default provider;
//   - identifiers tagged "openrouter:" are redirected to the OpenRouter
//     adapter client and run the two-round tool protocol: one call with the
//     tools declared, local execution of the requested tools, and one
//     follow-up call with the tool output folded into the prompt.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/germanamz/shorts/pkg/chats/chat"
	"github.com/germanamz/shorts/pkg/chats/content"
	"github.com/germanamz/shorts/pkg/chats/message"
	"github.com/germanamz/shorts/pkg/chats/role"
	"github.com/germanamz/shorts/pkg/modeladapter"
	"github.com/germanamz/shorts/pkg/providers/router"
	"github.com/germanamz/shorts/pkg/state"
	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

// DefaultPrompt is sent when a run is started with an empty prompt.
const DefaultPrompt = "Please help me with this request."

var (
	// ErrMaxIterations is returned when the ReAct loop exceeds MaxIterations
	// without the model producing a final answer.
	ErrMaxIterations = errors.New("agent: max iterations reached")

	// ErrGeneration wraps a failed call to the redirected provider.
	ErrGeneration = errors.New("agent: generation failed")

	// ErrNoBackend is returned by New when the agent has nothing to run on.
	ErrNoBackend = errors.New("agent: no model backend")
)

// Config describes an agent. Completer serves plain model identifiers and
// Generator serves redirected ones; an agent needs the one its model
// selects.
type Config struct {
	Name        string
	Description string
	Instruction string // May hold {key} placeholders filled from the state store.
	Model       string
	OutputKey   string // State key the final text is stored under.
	Completer   modeladapter.Completer
	Generator   Generator
	Toolboxes   []*toolbox.ToolBox
}

// Options tunes how an agent runs.
type Options struct {
	MaxIterations int          // ReAct loop limit (0 = unlimited).
	MaxParallel   int          // Concurrent tool calls in a redirected round (0 = unlimited).
	Middleware    []Middleware // Applied around Run.
	Logger        *slog.Logger

	// Fallback runs the ReAct loop when a redirected call fails. Nil makes
	// the failure an error wrapping ErrGeneration.
	Fallback modeladapter.Completer
}

// Response is the outcome of a run.
type Response struct {
	Text       string
	Model      string // Model that served the run, untagged; empty when the backend did not say.
	Redirected bool   // Served by the redirected provider.
	Fallback   bool   // Served by Options.Fallback after a redirected failure.
}

func (r Response) String() string { return r.Text }

// Agent is immutable after New and safe to run concurrently; each run gets
// its own conversation.
type Agent struct {
	name        string
	description string
	instruction string
	model       string
	outputKey   string
	completer   modeladapter.Completer
	generator   Generator
	toolboxes   []*toolbox.ToolBox
	options     Options
	log         *slog.Logger
}

// New validates cfg and creates an Agent.
func New(cfg Config, opts Options) (*Agent, error) {
	if cfg.Name == "" {
		return nil, errors.New("agent: name is required")
	}

	if router.IsRedirected(cfg.Model) {
		if cfg.Generator == nil && opts.Fallback == nil {
			return nil, fmt.Errorf("%w: agent %q uses %q but no OpenRouter client is configured", ErrNoBackend, cfg.Name, cfg.Model)
		}
	} else if cfg.Completer == nil {
		return nil, fmt.Errorf("%w: agent %q has no completer for %q", ErrNoBackend, cfg.Name, cfg.Model)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Agent{
		name:        cfg.Name,
		description: cfg.Description,
		instruction: cfg.Instruction,
		model:       cfg.Model,
		outputKey:   cfg.OutputKey,
		completer:   cfg.Completer,
		generator:   cfg.Generator,
		toolboxes:   append([]*toolbox.ToolBox(nil), cfg.Toolboxes...),
		options:     opts,
		log:         log.With("agent", cfg.Name),
	}, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.description }

// Model returns the model identifier as configured, tag included.
func (a *Agent) Model() string { return a.model }

// OutputKey returns the state key the agent writes to, or "".
func (a *Agent) OutputKey() string { return a.outputKey }

// Redirected reports whether the agent runs on the OpenRouter client.
func (a *Agent) Redirected() bool { return router.IsRedirected(a.model) }

// Tools returns the tools of every toolbox, in toolbox order.
func (a *Agent) Tools() []toolbox.Tool {
	var tools []toolbox.Tool
	for _, tb := range a.toolboxes {
		tools = append(tools, tb.Tools()...)
	}
	return tools
}

// Run answers prompt. The instruction is rendered against st, and the final
// text is stored under the output key when both are set. st may be nil.
func (a *Agent) Run(ctx context.Context, st *state.Store, prompt string) (Response, error) {
	var runner Runner = RunnerFunc(func(ctx context.Context) (Response, error) {
		return a.run(ctx, st, prompt)
	})

	// Apply middleware in reverse order so the first middleware is outermost.
	for i := len(a.options.Middleware) - 1; i >= 0; i-- {
		runner = a.options.Middleware[i](runner)
	}

	resp, err := runner.Run(ctx)
	if err != nil {
		return Response{}, err
	}

	if st != nil && a.outputKey != "" {
		st.Set(a.outputKey, resp.Text)
	}

	return resp, nil
}

func (a *Agent) run(ctx context.Context, st *state.Store, prompt string) (Response, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	system := a.instruction
	if st != nil {
		system = st.Render(system)
		ctx = state.NewContext(ctx, st)
	}

	if !a.Redirected() {
		return a.react(ctx, a.completer, a.model, system, prompt)
	}

	if a.generator == nil {
		a.log.WarnContext(ctx, "openrouter client not configured, using fallback", "model", a.model)
		return a.fallback(ctx, system, prompt)
	}

	resp, err := a.redirect(ctx, system, prompt)
	if err == nil {
		return resp, nil
	}

	if a.options.Fallback == nil {
		return Response{}, err
	}

	a.log.WarnContext(ctx, "openrouter generation failed, using fallback", "model", a.model, "error", err)

	return a.fallback(ctx, system, prompt)
}

func (a *Agent) fallback(ctx context.Context, system, prompt string) (Response, error) {
	resp, err := a.react(ctx, a.options.Fallback, "", system, prompt)
	if err != nil {
		return Response{}, err
	}
	resp.Fallback = true
	return resp, nil
}

// react is the ReAct loop of the default provider. A non-empty model is
// requested from c; otherwise c serves its own default.
func (a *Agent) react(ctx context.Context, c modeladapter.Completer, model, system, prompt string) (Response, error) {
	if model != "" {
		ctx = modeladapter.WithModel(ctx, model)
	}

	conv := chat.New()
	if system != "" {
		conv.Append(message.NewText(a.name, role.System, system))
	}
	conv.Append(message.NewText("user", role.User, prompt))

	tools := a.Tools()

	for i := 0; a.options.MaxIterations == 0 || i < a.options.MaxIterations; i++ {
		reply, err := c.Complete(ctx, conv, tools)
		if err != nil {
			return Response{}, fmt.Errorf("agent %s: %w", a.name, err)
		}

		reply.Sender = a.name
		conv.Append(reply)

		calls := reply.ToolCalls()
		if len(calls) == 0 {
			served := reply.Model
			if served == "" {
				served = model
			}
			return Response{Text: reply.TextContent(), Model: served}, nil
		}

		for _, tc := range calls {
			conv.Append(message.New(a.name, role.Tool, a.callTool(ctx, tc)))
		}
	}

	return Response{}, ErrMaxIterations
}

// callTool searches the toolboxes in order for the named tool.
func (a *Agent) callTool(ctx context.Context, tc content.ToolCall) content.ToolResult {
	for _, tb := range a.toolboxes {
		if _, ok := tb.Get(tc.Name); ok {
			return tb.Call(ctx, tc)
		}
	}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    fmt.Sprintf("tool not found: %s", tc.Name),
		IsError:    true,
	}
}

// hasTool reports whether any toolbox holds name.
func (a *Agent) hasTool(name string) bool {
	for _, tb := range a.toolboxes {
		if _, ok := tb.Get(name); ok {
			return true
		}
	}
	return false
}
