package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/germanamz/shorts/pkg/chats/chat"
	"github.com/germanamz/shorts/pkg/chats/content"
	"github.com/germanamz/shorts/pkg/chats/message"
	"github.com/germanamz/shorts/pkg/chats/role"
	"github.com/germanamz/shorts/pkg/modeladapter"
	"github.com/germanamz/shorts/pkg/state"
	"github.com/germanamz/shorts/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test helpers ---

// sequenceCompleter returns a sequence of preconfigured replies and records
// the conversations and requested models it was given.
type sequenceCompleter struct {
	replies []message.Message
	index   int
	seen    []*chat.Chat
	tools   [][]toolbox.Tool
	models  []string
}

func (p *sequenceCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	p.seen = append(p.seen, chat.New(c.Messages()...))
	p.tools = append(p.tools, tools)
	p.models = append(p.models, modeladapter.ModelFrom(ctx, ""))
	if p.index >= len(p.replies) {
		return message.Message{}, errors.New("no more replies")
	}
	reply := p.replies[p.index]
	p.index++
	return reply, nil
}

// errorCompleter always returns an error.
type errorCompleter struct {
	err error
}

func (p *errorCompleter) Complete(context.Context, *chat.Chat, []toolbox.Tool) (message.Message, error) {
	return message.Message{}, p.err
}

func newEchoToolBox() *toolbox.ToolBox {
	return toolbox.New().MustRegister(toolbox.Tool{
		Name:        "echo",
		Description: "Echoes input",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, input json.RawMessage) (string, error) {
			return string(input), nil
		},
	})
}

func mustNew(t *testing.T, cfg Config, opts Options) *Agent {
	t.Helper()

	a, err := New(cfg, opts)
	require.NoError(t, err)

	return a
}

// --- constructor tests ---

func TestNew(t *testing.T) {
	a := mustNew(t, Config{
		Name:        "scriptwriter",
		Description: "Writes scripts",
		Model:       "gemini-2.0-flash-exp",
		OutputKey:   "script",
		Completer:   &sequenceCompleter{},
		Toolboxes:   []*toolbox.ToolBox{newEchoToolBox()},
	}, Options{})

	assert.Equal(t, "scriptwriter", a.Name())
	assert.Equal(t, "Writes scripts", a.Description())
	assert.Equal(t, "gemini-2.0-flash-exp", a.Model())
	assert.Equal(t, "script", a.OutputKey())
	assert.False(t, a.Redirected())
	require.Len(t, a.Tools(), 1)
	assert.Equal(t, "echo", a.Tools()[0].Name)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Completer: &sequenceCompleter{}}, Options{})
	require.Error(t, err)

	_, err = New(Config{Name: "a", Model: "gemini"}, Options{})
	require.ErrorIs(t, err, ErrNoBackend)

	_, err = New(Config{Name: "a", Model: "openrouter:x/y", Completer: &sequenceCompleter{}}, Options{})
	require.ErrorIs(t, err, ErrNoBackend)

	a, err := New(Config{Name: "a", Model: "openrouter:x/y"}, Options{Fallback: &sequenceCompleter{}})
	require.NoError(t, err)
	assert.True(t, a.Redirected())
}

// --- ReAct loop tests ---

func TestRunNoToolCalls(t *testing.T) {
	p := &sequenceCompleter{
		replies: []message.Message{message.NewText("", role.Assistant, "Done.")},
	}
	a := mustNew(t, Config{Name: "bot", Instruction: "Be brief.", Completer: p}, Options{})

	resp, err := a.Run(context.Background(), nil, "Hi")

	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Text)
	assert.Equal(t, "Done.", resp.String())
	assert.False(t, resp.Redirected)

	require.Len(t, p.seen, 1)
	msgs := p.seen[0].Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, role.System, msgs[0].Role)
	assert.Equal(t, "Be brief.", msgs[0].TextContent())
	assert.Equal(t, "Hi", msgs[1].TextContent())
}

func TestRunRequestsConfiguredModel(t *testing.T) {
	p := &sequenceCompleter{
		replies: []message.Message{message.NewText("", role.Assistant, "Done.")},
	}
	a := mustNew(t, Config{Name: "bot", Model: "gemini-1.5-pro", Completer: p}, Options{})

	resp, err := a.Run(context.Background(), nil, "Hi")

	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-1.5-pro"}, p.models)
	assert.Equal(t, "gemini-1.5-pro", resp.Model)
}

func TestRunReportsServedModel(t *testing.T) {
	reply := message.NewText("", role.Assistant, "Done.")
	reply.Model = "gemini-1.5-pro-002"
	p := &sequenceCompleter{replies: []message.Message{reply}}
	a := mustNew(t, Config{Name: "bot", Model: "gemini-1.5-pro", Completer: p}, Options{})

	resp, err := a.Run(context.Background(), nil, "Hi")

	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-pro-002", resp.Model)
}

func TestRunWithToolCalls(t *testing.T) {
	p := &sequenceCompleter{
		replies: []message.Message{
			message.New("", role.Assistant,
				content.ToolCall{ID: "c1", Name: "echo", Arguments: `{"msg":"hi"}`},
			),
			message.NewText("", role.Assistant, "Echoed."),
		},
	}
	a := mustNew(t, Config{Name: "bot", Completer: p, Toolboxes: []*toolbox.ToolBox{newEchoToolBox()}}, Options{})

	resp, err := a.Run(context.Background(), nil, "echo hi")

	require.NoError(t, err)
	assert.Equal(t, "Echoed.", resp.Text)
	require.Len(t, p.seen, 2)
	require.Len(t, p.tools[0], 1)

	msgs := p.seen[1].Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, role.Tool, last.Role)
	tr, ok := last.Parts[0].(content.ToolResult)
	require.True(t, ok)
	assert.JSONEq(t, `{"msg":"hi"}`, tr.Content)
	assert.False(t, tr.IsError)
}

func TestRunToolNotFound(t *testing.T) {
	p := &sequenceCompleter{
		replies: []message.Message{
			message.New("", role.Assistant, content.ToolCall{ID: "c1", Name: "missing"}),
			message.NewText("", role.Assistant, "ok"),
		},
	}
	a := mustNew(t, Config{Name: "bot", Completer: p}, Options{})

	_, err := a.Run(context.Background(), nil, "x")
	require.NoError(t, err)

	msgs := p.seen[1].Messages()
	tr, _ := msgs[len(msgs)-1].Parts[0].(content.ToolResult)
	assert.True(t, tr.IsError)
	assert.Contains(t, tr.Content, "tool not found")
}

func TestRunMaxIterations(t *testing.T) {
	loop := message.New("", role.Assistant, content.ToolCall{ID: "c", Name: "echo", Arguments: "{}"})
	p := &sequenceCompleter{replies: []message.Message{loop, loop, loop}}
	a := mustNew(t, Config{Name: "bot", Completer: p, Toolboxes: []*toolbox.ToolBox{newEchoToolBox()}}, Options{MaxIterations: 2})

	_, err := a.Run(context.Background(), nil, "x")

	require.ErrorIs(t, err, ErrMaxIterations)
	assert.Len(t, p.seen, 2)
}

func TestRunCompleterError(t *testing.T) {
	a := mustNew(t, Config{Name: "bot", Completer: &errorCompleter{err: errors.New("quota")}}, Options{})

	_, err := a.Run(context.Background(), nil, "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestRunEmptyPromptUsesDefault(t *testing.T) {
	p := &sequenceCompleter{replies: []message.Message{message.NewText("", role.Assistant, "ok")}}
	a := mustNew(t, Config{Name: "bot", Completer: p}, Options{})

	_, err := a.Run(context.Background(), nil, "  ")
	require.NoError(t, err)

	msgs := p.seen[0].Messages()
	assert.Equal(t, DefaultPrompt, msgs[len(msgs)-1].TextContent())
}

func TestRunRendersInstructionAndStoresOutput(t *testing.T) {
	p := &sequenceCompleter{replies: []message.Message{message.NewText("", role.Assistant, "Shot list")}}
	a := mustNew(t, Config{
		Name:        "visualizer",
		Instruction: "Plan visuals for: {script}",
		OutputKey:   "visuals",
		Completer:   p,
	}, Options{})

	st := &state.Store{}
	st.Set("script", "Hook about Go")

	resp, err := a.Run(context.Background(), st, "go")
	require.NoError(t, err)
	assert.Equal(t, "Shot list", resp.Text)

	assert.Equal(t, "Plan visuals for: Hook about Go", p.seen[0].SystemPrompt())

	v, ok := st.Get("visuals")
	require.True(t, ok)
	assert.Equal(t, "Shot list", v)
}

func TestRunErrorDoesNotStoreOutput(t *testing.T) {
	a := mustNew(t, Config{Name: "bot", OutputKey: "out", Completer: &errorCompleter{err: errors.New("x")}}, Options{})

	st := &state.Store{}
	_, err := a.Run(context.Background(), st, "x")

	require.Error(t, err)
	_, ok := st.Get("out")
	assert.False(t, ok)
}

func TestRunConcurrent(t *testing.T) {
	a := mustNew(t, Config{Name: "bot", Completer: completerFunc(func(_ context.Context, c *chat.Chat, _ []toolbox.Tool) (message.Message, error) {
		last, _ := c.Last()
		return message.NewText("", role.Assistant, "re: "+last.TextContent()), nil
	})}, Options{})

	var wg sync.WaitGroup
	for _, p := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := a.Run(context.Background(), nil, p)
			assert.NoError(t, err)
			assert.Equal(t, "re: "+p, resp.Text)
		}()
	}
	wg.Wait()
}

type completerFunc func(context.Context, *chat.Chat, []toolbox.Tool) (message.Message, error)

func (f completerFunc) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	return f(ctx, c, tools)
}

func TestRunMiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Runner) Runner {
			return RunnerFunc(func(ctx context.Context) (Response, error) {
				order = append(order, name)
				return next.Run(ctx)
			})
		}
	}

	p := &sequenceCompleter{replies: []message.Message{message.NewText("", role.Assistant, "ok")}}
	a := mustNew(t, Config{Name: "bot", Completer: p}, Options{Middleware: []Middleware{mw("outer"), mw("inner")}})

	_, err := a.Run(context.Background(), nil, "x")

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRunStateToolsSeeRunStore(t *testing.T) {
	p := &sequenceCompleter{
		replies: []message.Message{
			message.New("", role.Assistant,
				content.ToolCall{ID: "c1", Name: "state_get", Arguments: `{"key":"topic"}`},
			),
			message.NewText("", role.Assistant, "done"),
		},
	}
	a := mustNew(t, Config{Name: "bot", Completer: p, Toolboxes: []*toolbox.ToolBox{state.ContextTools()}}, Options{})

	st := &state.Store{}
	st.Set("topic", "WebAssembly")

	_, err := a.Run(context.Background(), st, "go")
	require.NoError(t, err)

	msgs := p.seen[1].Messages()
	tr, ok := msgs[len(msgs)-1].Parts[0].(content.ToolResult)
	require.True(t, ok)
	assert.False(t, tr.IsError)
	assert.Equal(t, "WebAssembly", tr.Content)
}
