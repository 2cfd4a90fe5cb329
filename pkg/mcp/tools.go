package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rvergara/docflow/internal/diagram"
	"github.com/rvergara/docflow/pkg/schema"
)

// handleStart creates a run for a document from a template.
func (s *DocflowServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	templateID, err := req.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError("template_id is required"), nil
	}

	view, startErr := s.orchestrator.Start(ctx, documentID, templateID)
	if startErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", startErr)), nil
	}
	return marshalResult(view)
}

// handleOpen loads the run for display.
func (s *DocflowServer) handleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}

	view, openErr := s.orchestrator.Open(ctx, documentID)
	if openErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", openErr)), nil
	}
	return marshalResult(view)
}

// handleCommit executes a node, optionally staging an approval decision and
// saving form values first.
func (s *DocflowServer) handleCommit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}

	if formData := mcp.ParseStringMap(req, "form_data", nil); formData != nil {
		if saveErr := s.orchestrator.SaveFormData(ctx, documentID, nodeID, stringValues(formData)); saveErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("save form data failed: %v", saveErr)), nil
		}
	}
	if raw := req.GetString("approval", ""); raw != "" {
		approval, parseErr := schema.ParseApproval(raw)
		if parseErr != nil {
			return mcp.NewToolResultError(parseErr.Error()), nil
		}
		s.orchestrator.StageApproval(documentID, nodeID, approval)
	}

	view, commitErr := s.orchestrator.Commit(ctx, documentID, nodeID)
	if commitErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("commit failed: %v", commitErr)), nil
	}
	return marshalResult(view)
}

// handlePending lists the committable nodes of a run.
func (s *DocflowServer) handlePending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}

	view, openErr := s.orchestrator.Open(ctx, documentID)
	if openErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", openErr)), nil
	}
	return marshalResult(map[string]any{
		"documentId": view.DocumentID,
		"status":     view.Status,
		"pending":    view.Pending,
	})
}

// handleHistory reads the action log.
func (s *DocflowServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	nodeID := req.GetString("node_id", "")

	actions, histErr := s.orchestrator.History(ctx, documentID, nodeID)
	if histErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", histErr)), nil
	}
	return marshalResult(map[string]any{"actions": actions})
}

// handleRender returns the run as Mermaid flowchart text.
func (s *DocflowServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}

	view, openErr := s.orchestrator.Open(ctx, documentID)
	if openErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", openErr)), nil
	}
	title := req.GetString("title", view.FlowName)
	return mcp.NewToolResultText(diagram.RenderMermaid(&view.Graph, title)), nil
}

// stringValues flattens a decoded JSON object into form values.
func stringValues(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
