// Package mcpserver serves toolbox tools over MCP. The shorts CLI uses it to
// expose the whole pipeline as a single generate_short tool.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/germanamz/shorts/pkg/pipeline"
	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

// GenerateShortName is the name of the pipeline tool.
const GenerateShortName = "generate_short"

// Options configures an MCPServer.
type Options struct {
	Instructions string // Sent to clients during initialization.
}

// MCPServer serves tools over the MCP protocol using the official MCP Go SDK.
type MCPServer struct {
	server *mcp.Server
}

// New creates an MCPServer with the given name and version.
func New(name, version string, opts Options) *MCPServer {
	var sopts *mcp.ServerOptions
	if opts.Instructions != "" {
		sopts = &mcp.ServerOptions{Instructions: opts.Instructions}
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, sopts)

	return &MCPServer{server: server}
}

// Register adds tools to the server. Invalid tools are rejected.
func (s *MCPServer) Register(tools ...toolbox.Tool) error {
	for _, t := range tools {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("mcpserver: %w", err)
		}
		s.server.AddTool(toSDKTool(t), toSDKHandler(t.Handler))
	}
	return nil
}

// Serve reads requests from in and writes responses to out until ctx is
// cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

// ServeStdio serves on the process's stdin and stdout.
func (s *MCPServer) ServeStdio(ctx context.Context) error {
	return s.run(ctx, &mcp.StdioTransport{})
}

func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.Schema(),
	}
}

func toSDKHandler(h toolbox.Handler) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		result, err := h(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, nil
	}
}

// nopWriteCloser wraps an io.Writer as an io.WriteCloser with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Runner runs the pipeline for a topic. *pipeline.Pipeline and
// *engine.Engine implement it.
type Runner interface {
	Run(ctx context.Context, topic string) (pipeline.Result, error)
}

type generateInput struct {
	Topic string `json:"topic"`
}

// GenerateShortTool wraps r as the generate_short tool. The tool returns the
// final production package.
func GenerateShortTool(r Runner) toolbox.Tool {
	schema, _ := json.Marshal(&jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"topic": {
				Type:        "string",
				Description: "Topic of the YouTube Short, e.g. \"What's new in Go 1.25\".",
			},
		},
		Required: []string{"topic"},
	})

	return toolbox.Tool{
		Name:        GenerateShortName,
		Description: "Write a script, plan the visuals and format a production package for a YouTube Short on a topic.",
		InputSchema: schema,
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var in generateInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return "", fmt.Errorf("invalid input: %w", err)
			}
			if strings.TrimSpace(in.Topic) == "" {
				return "", errors.New("invalid input: topic is required")
			}

			res, err := r.Run(ctx, in.Topic)
			if err != nil {
				return "", err
			}

			return res.Final, nil
		},
	}
}
