// Package tools provides the tools agents can call and MCP (Model Context
// Protocol) integration.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/shorts/pkg/tools/toolbox]: Tool type and ToolBox orchestrator for registering, listing, and calling tools
//   - [github.com/germanamz/shorts/pkg/tools/websearch]: web_search tool backed by DuckDuckGo's HTML endpoint
//   - [github.com/germanamz/shorts/pkg/tools/mcpclient]: MCP client turning external MCP servers into toolboxes
//   - [github.com/germanamz/shorts/pkg/tools/mcpserver]: MCP server exposing toolboxes, and the pipeline as generate_short
//
// The toolbox sub-package is the foundation layer; the others depend on it
// for the Tool type but are independent of each other.
package tools
