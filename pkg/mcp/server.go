// Package mcp exposes run operations as MCP tools so agents can drive
// document flows over a stdio transport.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rvergara/docflow/internal/engine"
	"github.com/rvergara/docflow/internal/store"
)

// DocflowServerDeps holds the dependencies for creating a DocflowServer.
type DocflowServerDeps struct {
	Orchestrator *engine.Orchestrator
	Store        store.Store
	Logger       *slog.Logger
}

// DocflowServer wraps an MCP server with flow-specific tool handlers.
type DocflowServer struct {
	orchestrator *engine.Orchestrator
	store        store.Store
	logger       *slog.Logger
	mcpServer    *server.MCPServer
}

func NewDocflowServer(deps DocflowServerDeps) *DocflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &DocflowServer{
		orchestrator: deps.Orchestrator,
		store:        deps.Store,
		logger:       logger,
	}

	mcpSrv := server.NewMCPServer(
		"docflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Docflow runs document approval flows. Use docflow.start to create a run, docflow.open to inspect it, docflow.commit to execute a node, docflow.pending to list committable nodes, docflow.history for the action log and docflow.render for a Mermaid diagram."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *DocflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DocflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *DocflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: openTool(), Handler: s.handleOpen},
		{Tool: commitTool(), Handler: s.handleCommit},
		{Tool: pendingTool(), Handler: s.handlePending},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: renderTool(), Handler: s.handleRender},
	}
}

// --- Tool definitions ---

func startTool() mcp.Tool {
	return mcp.NewTool("docflow.start",
		mcp.WithDescription("Create a flow run for a document from a stored template"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the document the run belongs to")),
		mcp.WithString("template_id", mcp.Required(), mcp.Description("ID of the flow template to instantiate")),
	)
}

func openTool() mcp.Tool {
	return mcp.NewTool("docflow.open",
		mcp.WithDescription("Load a document's flow run: graph snapshot, status, pending nodes and edge colors"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the document to open")),
	)
}

func commitTool() mcp.Tool {
	return mcp.NewTool("docflow.commit",
		mcp.WithDescription("Execute a reachable node. Approval nodes need a decision; form data can be supplied inline"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the document")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node to commit")),
		mcp.WithString("approval", mcp.Enum("approved", "rejected"), mcp.Description("Decision for approval action nodes")),
		mcp.WithObject("form_data", mcp.Description("Form field values to save before committing")),
	)
}

func pendingTool() mcp.Tool {
	return mcp.NewTool("docflow.pending",
		mcp.WithDescription("List the nodes that are committable right now"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the document")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("docflow.history",
		mcp.WithDescription("Read the ordered action log of a run"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the document")),
		mcp.WithString("node_id", mcp.Description("Restrict to actions recorded for one node")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("docflow.render",
		mcp.WithDescription("Render the run as a Mermaid flowchart with execution state coloring"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("ID of the document")),
		mcp.WithString("title", mcp.Description("Diagram title (default: flow name)")),
	)
}
