package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mordonez-me/capibara/internal/introspect"
)

// GraphURI addresses the introspection export.
const GraphURI = "capibara://graph"

// GraphResource serves the introspection export.
type GraphResource struct {
	src introspect.GraphSource
}

// NewGraphResource creates a GraphResource reading from src.
func NewGraphResource(src introspect.GraphSource) *GraphResource {
	return &GraphResource{src: src}
}

// Definition returns the MCP resource definition.
func (r *GraphResource) Definition() mcp.Resource {
	return mcp.NewResource(
		GraphURI,
		"Capability graph",
		mcp.WithResourceDescription("Every declared capability, feature lineages, warnings and the local fingerprint"),
		mcp.WithMIMEType("application/json"),
	)
}

// Handle returns the export as JSON.
func (r *GraphResource) Handle(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	g := r.src.Graph()
	if g == nil {
		return nil, fmt.Errorf("no capability graph loaded")
	}

	data, err := introspect.Export(g).JSON()
	if err != nil {
		return nil, fmt.Errorf("marshaling graph: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
