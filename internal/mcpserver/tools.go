package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mordonez-me/capibara/internal/capability"
	"github.com/mordonez-me/capibara/internal/negotiate"
)

// LineageTool handles the capability_lineage MCP tool.
type LineageTool struct {
	engine *negotiate.Engine
}

// NewLineageTool creates a LineageTool.
func NewLineageTool(e *negotiate.Engine) *LineageTool {
	return &LineageTool{engine: e}
}

// Definition returns the MCP tool definition for capability_lineage.
func (t *LineageTool) Definition() mcp.Tool {
	return mcp.NewTool("capability_lineage",
		mcp.WithDescription("Show the lineage of a capability, oldest first, and its direct replacements."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Capability name, e.g. feed.cursor.v2"),
		),
	)
}

// Handle processes the capability_lineage tool call.
func (t *LineageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := capability.CanonicalName(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	g := t.engine.Graph()
	if g == nil {
		return mcp.NewToolResultError("no capability graph loaded"), nil
	}
	lineage, ok := g.Lineage(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("capability %q is not declared", name)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", name)
	fmt.Fprintf(&sb, "- **Lineage**: %s\n", strings.Join(lineage, " → "))
	if succ := g.Successors(name); len(succ) > 0 {
		fmt.Fprintf(&sb, "- **Replaced by**: %s\n", strings.Join(succ, ", "))
	} else {
		sb.WriteString("- **Replaced by**: nothing (newest in lineage)\n")
	}
	if r, _ := g.Record(name); r.Deprecated {
		sb.WriteString("- **Deprecated**: yes\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// ResolveTool handles the capability_resolve MCP tool.
type ResolveTool struct {
	engine *negotiate.Engine
}

// NewResolveTool creates a ResolveTool.
func NewResolveTool(e *negotiate.Engine) *ResolveTool {
	return &ResolveTool{engine: e}
}

// Definition returns the MCP tool definition for capability_resolve.
func (t *ResolveTool) Definition() mcp.Tool {
	return mcp.NewTool("capability_resolve",
		mcp.WithDescription("Resolve an advertisement against the local graph and show the version selected per feature."),
		mcp.WithString("capabilities",
			mcp.Description("Comma-separated capability names, as sent in x-capabilities"),
		),
		mcp.WithString("hash",
			mcp.Description("Fingerprint, as sent in x-capability-hash"),
		),
	)
}

// Handle processes the capability_resolve tool call. Nothing advertised is
// a valid request and resolves to baseline.
func (t *ResolveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	carrier := negotiate.MapCarrier{}
	if v := req.GetString("capabilities", ""); v != "" {
		carrier.Set(negotiate.HeaderCapabilities, v)
	}
	if v := req.GetString("hash", ""); v != "" {
		carrier.Set(negotiate.HeaderHash, v)
	}

	n := t.engine.Negotiate(carrier)

	var sb strings.Builder
	fmt.Fprintf(&sb, "- **Outcome**: %s\n", n.Outcome)
	if n.Err != nil {
		fmt.Fprintf(&sb, "- **Degraded**: %v\n", n.Err)
	}
	fmt.Fprintf(&sb, "- **Effective**: %s\n", orNone(n.Result.Effective().String()))
	fmt.Fprintf(&sb, "- **Ignored**: %s\n", orNone(n.Result.Ignored().String()))
	fmt.Fprintf(&sb, "- **Fingerprint**: %s\n\n", n.Result.Fingerprint())

	sb.WriteString("| Feature | Selected |\n|---|---|\n")
	for _, sel := range n.Result.Selections() {
		selected := sel.Capability
		if sel.Baseline {
			selected = "baseline"
		}
		fmt.Fprintf(&sb, "| %s | %s |\n", sel.Feature, selected)
	}

	return mcp.NewToolResultText(sb.String()), nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
