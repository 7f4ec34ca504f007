// Package mcpclient connects to MCP servers declared in the pipeline file and
// turns their tools into toolboxes agents can reference by server name.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

// ServerConfig describes one MCP server. Command starts a stdio server;
// URL connects to an SSE server instead.
type ServerConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`     // Extra KEY=VALUE pairs for the process.
	URL     string   `yaml:"url"`     // SSE endpoint.
	Include []string `yaml:"include"` // Tool allow-list; empty keeps every tool.
}

// Validate checks that exactly one transport is configured.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return errors.New("mcpclient: server name is required")
	}
	if (c.Command == "") == (c.URL == "") {
		return fmt.Errorf("mcpclient: server %q: exactly one of command or url is required", c.Name)
	}
	return nil
}

// MCPClient is a session with one MCP server.
type MCPClient struct {
	name    string
	include []string
	client  *mcp.Client
	session *mcp.ClientSession
}

// Connect starts or dials the configured server and completes the MCP
// handshake.
func Connect(ctx context.Context, cfg ServerConfig) (*MCPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var transport mcp.Transport
	if cfg.URL != "" {
		transport = &mcp.SSEClientTransport{Endpoint: cfg.URL}
	} else {
		cmd := exec.Command(cfg.Command, cfg.Args...) //nolint:gosec // command comes from the pipeline file
		if len(cfg.Env) > 0 {
			cmd.Env = append(os.Environ(), cfg.Env...)
		}
		transport = &mcp.CommandTransport{Command: cmd}
	}

	c, err := newFromTransport(ctx, cfg.Name, transport)
	if err != nil {
		return nil, err
	}
	c.include = cfg.Include

	return c, nil
}

// newFromTransport creates an MCPClient over transport. Tests use it with
// in-memory transports.
func newFromTransport(ctx context.Context, name string, transport mcp.Transport) (*MCPClient, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "shorts",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect %s: %w", name, err)
	}

	return &MCPClient{name: name, client: client, session: session}, nil
}

// Name returns the server name from the configuration.
func (c *MCPClient) Name() string { return c.name }

// ListTools fetches the server's tools as toolbox.Tool values whose handlers
// call back through CallTool. The include list, when set, filters them.
func (c *MCPClient) ListTools(ctx context.Context) ([]toolbox.Tool, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: %s: list tools: %w", c.name, err)
	}

	tools := make([]toolbox.Tool, 0, len(result.Tools))
	for _, sdkTool := range result.Tools {
		if len(c.include) > 0 && !slices.Contains(c.include, sdkTool.Name) {
			continue
		}

		t, err := c.fromSDKTool(sdkTool)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: %s: convert tool %q: %w", c.name, sdkTool.Name, err)
		}
		tools = append(tools, t)
	}

	return tools, nil
}

// ToolBox lists the server's tools into a new toolbox.
func (c *MCPClient) ToolBox(ctx context.Context) (*toolbox.ToolBox, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tb := toolbox.New()
	if err := tb.Register(tools...); err != nil {
		return nil, fmt.Errorf("mcpclient: %s: %w", c.name, err)
	}

	return tb, nil
}

// CallTool calls a named tool with raw JSON arguments. A tool-level failure
// is returned as an error carrying the tool's text.
func (c *MCPClient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("mcpclient: unmarshal arguments: %w", err)
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcpclient: call tool: %w", err)
	}

	text := extractText(result)

	if result.IsError {
		return "", fmt.Errorf("mcpclient: tool error: %s", text)
	}

	return text, nil
}

// Close ends the session; for command servers this also stops the process.
func (c *MCPClient) Close() error {
	return c.session.Close()
}

func (c *MCPClient) fromSDKTool(sdkTool *mcp.Tool) (toolbox.Tool, error) {
	schemaBytes, err := json.Marshal(sdkTool.InputSchema)
	if err != nil {
		return toolbox.Tool{}, fmt.Errorf("marshal input schema: %w", err)
	}

	name := sdkTool.Name

	return toolbox.Tool{
		Name:        sdkTool.Name,
		Description: sdkTool.Description,
		InputSchema: json.RawMessage(schemaBytes),
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			return c.CallTool(ctx, name, input)
		},
	}, nil
}

// extractText joins all TextContent items with newlines.
func extractText(result *mcp.CallToolResult) string {
	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	return strings.Join(texts, "\n")
}

// Group holds the sessions of every configured server.
type Group struct {
	mu        sync.Mutex
	clients   []*MCPClient
	toolboxes map[string]*toolbox.ToolBox
}

// ConnectAll connects to every server concurrently and lists their tools.
// If any server fails, the ones already connected are closed.
func ConnectAll(ctx context.Context, cfgs []ServerConfig) (*Group, error) {
	g := &Group{toolboxes: make(map[string]*toolbox.ToolBox, len(cfgs))}

	eg, ectx := errgroup.WithContext(ctx)
	for _, cfg := range cfgs {
		eg.Go(func() error {
			c, err := Connect(ectx, cfg)
			if err != nil {
				return err
			}
			g.add(c, nil)

			tb, err := c.ToolBox(ectx)
			if err != nil {
				return err
			}
			g.add(nil, map[string]*toolbox.ToolBox{cfg.Name: tb})

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		_ = g.Close()
		return nil, err
	}

	return g, nil
}

func (g *Group) add(c *MCPClient, tbs map[string]*toolbox.ToolBox) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c != nil {
		g.clients = append(g.clients, c)
	}
	for k, v := range tbs {
		g.toolboxes[k] = v
	}
}

// ToolBox returns the toolbox of the named server.
func (g *Group) ToolBox(name string) (*toolbox.ToolBox, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tb, ok := g.toolboxes[name]
	return tb, ok
}

// Names returns the connected server names, sorted.
func (g *Group) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, len(g.toolboxes))
	for n := range g.toolboxes {
		names = append(names, n)
	}
	slices.Sort(names)

	return names
}

// Close closes every session and joins their errors.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for _, c := range g.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	g.clients = nil

	return errors.Join(errs...)
}
