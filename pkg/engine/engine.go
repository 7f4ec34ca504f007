package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/germanamz/shorts/pkg/agent"
	"github.com/germanamz/shorts/pkg/chats/chat"
	"github.com/germanamz/shorts/pkg/chats/message"
	"github.com/germanamz/shorts/pkg/chats/role"
	"github.com/germanamz/shorts/pkg/modeladapter"
	"github.com/germanamz/shorts/pkg/modeladapter/usage"
	"github.com/germanamz/shorts/pkg/pipeline"
	"github.com/germanamz/shorts/pkg/prompts"
	"github.com/germanamz/shorts/pkg/providers/openrouter"
	"github.com/germanamz/shorts/pkg/providers/router"
	"github.com/germanamz/shorts/pkg/state"
	"github.com/germanamz/shorts/pkg/tools/mcpclient"
	"github.com/germanamz/shorts/pkg/tools/toolbox"
	"github.com/germanamz/shorts/pkg/tools/websearch"
)

// Probe prompts used by CheckConnectivity.
const (
	SampleSystem = "You are a helpful AI assistant."
	SamplePrompt = "Say hello and confirm you are working."
)

// Options configures New.
type Options struct {
	Env        EnvConfig
	Config     Config
	Prompts    *prompts.Loader    // Nil serves the embedded prompts.
	HTTPClient *http.Client       // Shared by every provider and the search tool; nil uses the defaults.
	Events     *pipeline.EventBus // Nil disables pipeline events.
	Logger     *slog.Logger       // Nil uses slog.Default().
	Search     []websearch.Option // Extra options for the web_search toolbox.
	Middleware []agent.Middleware // Appended after the engine's own middleware.
}

// Engine is the composition root that assembles all components from
// configuration and exposes them through a frontend-agnostic API.
type Engine struct {
	env       EnvConfig
	cfg       Config
	log       *slog.Logger
	completer modeladapter.Completer
	client    *openrouter.Client
	toolboxes map[string]*toolbox.ToolBox
	mcp       *mcpclient.Group
	registry  *agent.Registry
	pipeline  *pipeline.Pipeline
}

// New creates an Engine. It validates both configurations, creates the
// provider backends, connects MCP servers and builds one agent per pipeline
// stage.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if err := opts.Env.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	loader := opts.Prompts
	if loader == nil {
		loader = &prompts.Loader{}
	}

	e := &Engine{
		env:       opts.Env,
		cfg:       opts.Config,
		log:       log,
		toolboxes: make(map[string]*toolbox.ToolBox),
		registry:  agent.NewRegistry(),
	}

	var err error
	if e.completer, err = buildCompleter(opts.Env, opts.Config.RateLimit, opts.HTTPClient); err != nil {
		return nil, err
	}
	if e.client, err = buildClient(opts.Env, opts.HTTPClient, openrouter.WithLogger(log)); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	if err := e.buildToolboxes(ctx, opts); err != nil {
		return nil, err
	}

	stages := make([]*agent.Agent, 0, len(opts.Config.Agents))
	for _, ac := range opts.Config.Agents {
		a, err := e.buildAgent(ac, loader, opts.Middleware)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		stages = append(stages, a)
	}

	if err := e.registry.Register(stages...); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}

	stageTimeout, _ := parseDuration(opts.Config.StageTimeout)
	e.pipeline, err = pipeline.New(opts.Config.Name, stages, pipeline.Options{
		Events:       opts.Events,
		Logger:       log,
		StageTimeout: stageTimeout,
	})
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}

	return e, nil
}

func (e *Engine) buildToolboxes(ctx context.Context, opts Options) error {
	searchOpts := opts.Search
	if opts.HTTPClient != nil {
		searchOpts = append([]websearch.Option{websearch.WithHTTPClient(opts.HTTPClient)}, searchOpts...)
	}

	searcher, err := websearch.New(searchOpts...)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.toolboxes[ToolboxWebSearch] = searcher.ToolBox()
	e.toolboxes[ToolboxState] = state.ContextTools()

	if len(opts.Config.MCPServers) == 0 {
		return nil
	}

	group, err := mcpclient.ConnectAll(ctx, opts.Config.MCPServers)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.mcp = group

	for _, name := range group.Names() {
		tb, _ := group.ToolBox(name)
		e.toolboxes[name] = tb
	}

	return nil
}

func (e *Engine) buildAgent(ac AgentConfig, loader *prompts.Loader, extra []agent.Middleware) (*agent.Agent, error) {
	instruction := ac.Instruction
	if instruction == "" {
		file := ac.InstructionFile
		if file == "" {
			file = ac.Name + ".txt"
		}

		p, err := loader.Load(file)
		if err != nil {
			return nil, fmt.Errorf("engine: agent %q: %w", ac.Name, err)
		}
		if p.Source == prompts.SourceFallback {
			e.log.Warn("instruction file not found, using fallback", "agent", ac.Name, "file", file)
		}
		instruction = p.Content
	}

	model := ac.Model
	if model == "" {
		model = e.env.DefaultModel()
	}

	tbs := make([]*toolbox.ToolBox, 0, len(ac.Toolboxes))
	for _, name := range ac.Toolboxes {
		tb, ok := e.toolboxes[name]
		if !ok {
			return nil, fmt.Errorf("engine: agent %q: toolbox %q not found", ac.Name, name)
		}
		tbs = append(tbs, tb)
	}

	mw := []agent.Middleware{
		agent.Recovery(),
		agent.Logger(e.log, ac.Name),
	}
	if d, _ := parseDuration(ac.Options.Timeout); d > 0 {
		mw = append(mw, agent.Timeout(d))
	}
	mw = append(mw, agent.OutputGuardrail(agent.NonEmpty))
	mw = append(mw, extra...)

	cfg := agent.Config{
		Name:        ac.Name,
		Description: ac.Description,
		Instruction: instruction,
		Model:       model,
		OutputKey:   ac.OutputKey,
		Completer:   e.completer,
		Toolboxes:   tbs,
	}
	if e.client != nil {
		cfg.Generator = e.client
	}

	a, err := agent.New(cfg, agent.Options{
		MaxIterations: ac.Options.MaxIterations,
		MaxParallel:   ac.Options.MaxParallel,
		Middleware:    mw,
		Logger:        e.log,
		Fallback:      e.completer,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return a, nil
}

// Run executes the pipeline for topic.
func (e *Engine) Run(ctx context.Context, topic string) (pipeline.Result, error) {
	return e.pipeline.Run(ctx, topic)
}

// Pipeline returns the assembled pipeline.
func (e *Engine) Pipeline() *pipeline.Pipeline { return e.pipeline }

// Events returns the pipeline's event bus, or nil.
func (e *Engine) Events() *pipeline.EventBus { return e.pipeline.Events() }

// Env returns the environment configuration the engine was built from.
func (e *Engine) Env() EnvConfig { return e.env }

// Connectivity is the outcome of CheckConnectivity.
type Connectivity struct {
	Provider  string
	Model     string
	BaseURL   string // Set for OpenRouter.
	Connected bool
	Sample    string // Reply to SamplePrompt when connected.
	Err       error  // Why the sample generation failed.
	Duration  time.Duration
}

// CheckConnectivity probes the configured provider and, when it answers,
// asks for a short sample generation.
func (e *Engine) CheckConnectivity(ctx context.Context) Connectivity {
	start := time.Now()
	res := Connectivity{Provider: e.env.Provider, Model: router.StripTag(e.env.DefaultModel())}

	if e.client != nil {
		res.BaseURL = e.client.Config().BaseURL
		res.Connected = e.client.TestConnectivity(ctx)
		if res.Connected {
			text := e.client.GenerateText(ctx, SamplePrompt, SampleSystem)
			res.Sample, res.Err = text.Content, text.Err
		}
		res.Duration = time.Since(start)
		return res
	}

	c := chat.New(
		message.NewText("", role.System, SampleSystem),
		message.NewText("", role.User, SamplePrompt),
	)
	reply, err := e.completer.Complete(ctx, c, nil)
	if err != nil {
		e.log.WarnContext(ctx, "connectivity check failed", "provider", e.env.Provider, "error", err)
		res.Err = err
	} else {
		res.Connected = true
		res.Sample = reply.TextContent()
	}
	res.Duration = time.Since(start)

	return res
}

// Description summarizes the assembled engine.
type Description struct {
	Pipeline   string
	Provider   string
	Model      string
	Fallback   bool // A default-provider completer backs OpenRouter agents.
	Agents     []agent.Entry
	Toolboxes  []string
	MCPServers []string
}

// Describe returns a summary of the providers, agents and toolboxes, in
// pipeline order.
func (e *Engine) Describe() Description {
	d := Description{
		Pipeline: e.pipeline.Name(),
		Provider: e.env.Provider,
		Model:    e.env.DefaultModel(),
		Fallback: e.client != nil && e.completer != nil,
	}

	byName := make(map[string]agent.Entry, e.registry.Len())
	for _, entry := range e.registry.List() {
		byName[entry.Name] = entry
	}
	for _, a := range e.pipeline.Stages() {
		d.Agents = append(d.Agents, byName[a.Name()])
	}

	for name := range e.toolboxes {
		d.Toolboxes = append(d.Toolboxes, name)
	}
	slices.Sort(d.Toolboxes)

	if e.mcp != nil {
		d.MCPServers = e.mcp.Names()
	}

	return d
}

// BackendUsage is the token spend of one model backend.
type BackendUsage struct {
	Backend string
	Calls   int
	Tokens  usage.TokenCount
}

// Usage returns the spend of every backend that tracks tokens, OpenRouter
// first.
func (e *Engine) Usage() []BackendUsage {
	var out []BackendUsage

	if e.client != nil {
		out = append(out, backendUsage(ProviderOpenRouter, e.client.UsageTracker()))
	}
	if ur, ok := e.completer.(modeladapter.UsageReporter); ok {
		out = append(out, backendUsage(completerKind(e.env), ur.UsageTracker()))
	}

	return out
}

func backendUsage(name string, t *usage.Tracker) BackendUsage {
	return BackendUsage{Backend: name, Calls: t.Count(), Tokens: t.Total()}
}

// Close shuts down MCP clients and releases resources.
func (e *Engine) Close() error {
	if e.mcp == nil {
		return nil
	}
	return e.mcp.Close()
}
