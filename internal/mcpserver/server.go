// Package mcpserver exposes the capability graph to development tooling
// over the Model Context Protocol.
//
// Resources:
//   - capibara://graph: the introspection export
//
// Tools:
//   - capability_lineage: the chain from a capability back to its root
//   - capability_resolve: what a given advertisement resolves to
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mordonez-me/capibara/internal/negotiate"
)

// New creates an MCP server backed by e.
func New(e *negotiate.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"capibara",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
	)

	graphResource := NewGraphResource(e)
	s.AddResource(graphResource.Definition(), graphResource.Handle)

	lineageTool := NewLineageTool(e)
	s.AddTool(lineageTool.Definition(), lineageTool.Handle)

	resolveTool := NewResolveTool(e)
	s.AddTool(resolveTool.Definition(), resolveTool.Handle)

	return s
}
