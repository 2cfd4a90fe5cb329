package engine

import (
	"context"
	"encoding/json"

	"github.com/rvergara/docflow/internal/clients"
	"github.com/rvergara/docflow/internal/graph"
	"github.com/rvergara/docflow/internal/logging"
	"github.com/rvergara/docflow/internal/store"
	"github.com/rvergara/docflow/pkg/schema"
)

// commitResult is what a kind handler hands back: the updated graph, an
// optional run status transition, and the history action to record.
type commitResult struct {
	graph   schema.Graph
	status  schema.FlowStatus
	action  string
	payload json.RawMessage
}

// dispatch routes a commit to the handler for the node's kind. External
// calls happen before any state flip; a handler error means nothing moved.
func (o *Orchestrator) dispatch(ctx context.Context, exec *store.Execution, node schema.Node) (*commitResult, error) {
	switch node.Kind {
	case schema.NodeKindStart:
		return o.commitStart(exec, node)
	case schema.NodeKindAction:
		return o.commitAction(ctx, exec, node)
	case schema.NodeKindIntegration:
		return o.commitIntegration(ctx, exec, node)
	case schema.NodeKindDocument:
		return o.commitDocument(ctx, exec, node)
	case schema.NodeKindEnd:
		return o.commitEnd(ctx, exec, node)
	case schema.NodeKindSwitch:
		// Switch nodes execute implicitly when their input arrives.
		return o.commitSwitch(exec, node)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown node kind %q", node.Kind).WithNode(node.ID)
	}
}

// commitStart marks the start node executed. No side effects.
func (o *Orchestrator) commitStart(exec *store.Execution, node schema.Node) (*commitResult, error) {
	g := graph.WithNodeData(&exec.FlowTasks, node.ID, func(d *schema.NodeData) {
		d.Executed = true
	})
	return &commitResult{graph: g, action: schema.ActionNodeCommitted}, nil
}

// commitAction executes a generic or approval action node: persists form
// data and the resolved approval, and feeds any downstream switch its
// currentInput from the approval value.
func (o *Orchestrator) commitAction(ctx context.Context, exec *store.Execution, node schema.Node) (*commitResult, error) {
	approval := o.StagedApproval(&exec.FlowTasks, exec.DocumentID, node.ID)

	formData := node.Data.SavedFormData
	if stored, err := o.store.GetFormData(ctx, exec.DocumentID, node.ID); err == nil && len(stored) > 0 {
		formData = stored
	}

	g := graph.WithNodeData(&exec.FlowTasks, node.ID, func(d *schema.NodeData) {
		d.Executed = true
		if len(formData) > 0 {
			d.SavedFormData = formData
		}
		if d.ActionType == schema.ActionTypeApproval {
			d.Approval = approval
		}
	})

	// An approval's resolution drives the branch choice of any switch
	// wired directly after it.
	if node.Data.ActionType == schema.ActionTypeApproval && approval != schema.ApprovalUndefined {
		for _, e := range graph.EdgesFrom(&g, node.ID) {
			target := graph.NodeByID(&g, e.Target)
			if target != nil && target.Kind == schema.NodeKindSwitch {
				g = graph.WithNodeData(&g, target.ID, func(d *schema.NodeData) {
					d.CurrentInput = approval.LegacyValue()
				})
			}
		}
	}

	action := schema.ActionNodeCommitted
	var payload json.RawMessage
	if node.Data.ActionType == schema.ActionTypeApproval {
		action = schema.ActionApprovalResolved
		payload = mustJSON(map[string]string{"approval": approval.LegacyValue()})
	}
	return &commitResult{graph: g, action: action, payload: payload}, nil
}

// commitIntegration invokes the external call and flips state only on a
// confirmed success. A failure leaves the node exactly as it was, with the
// failure message surfaced to the caller for retry.
func (o *Orchestrator) commitIntegration(ctx context.Context, exec *store.Execution, node schema.Node) (*commitResult, error) {
	if o.caller == nil {
		return nil, schema.NewError(schema.ErrCodeIntegration, "no integration backend configured").WithNode(node.ID)
	}
	result, err := o.caller.Call(ctx, exec.DocumentID, node)
	if err != nil {
		_ = o.store.AppendAction(ctx, &store.FlowAction{
			DocumentID: exec.DocumentID,
			NodeID:     node.ID,
			Type:       schema.ActionIntegrationFailed,
			Payload:    mustJSON(map[string]string{"error": err.Error()}),
		})
		return nil, err
	}

	g := graph.WithNodeData(&exec.FlowTasks, node.ID, func(d *schema.NodeData) {
		d.Executed = true
		d.ResultMessage = result.Message
	})
	return &commitResult{
		graph:   g,
		action:  schema.ActionIntegrationSucceeded,
		payload: mustJSON(map[string]string{"service": node.Data.Service, "message": result.Message}),
	}, nil
}

// commitDocument starts an edition: the node is not executed yet, it only
// enters "in process" while the edition service owns the document. The
// node executes later via CompleteEdition.
func (o *Orchestrator) commitDocument(ctx context.Context, exec *store.Execution, node schema.Node) (*commitResult, error) {
	if o.editions == nil {
		return nil, schema.NewError(schema.ErrCodeCollaborator, "no edition service configured").WithNode(node.ID)
	}
	if node.Data.InProcess {
		return nil, schema.NewError(schema.ErrCodeConflict, "edition already in progress").WithNode(node.ID)
	}
	if err := o.editions.Open(ctx, exec.DocumentID, node.Data.TemplateID, node.ID); err != nil {
		return nil, err
	}

	g := graph.WithNodeData(&exec.FlowTasks, node.ID, func(d *schema.NodeData) {
		d.InProcess = true
	})
	return &commitResult{
		graph:   g,
		action:  schema.ActionEditionStarted,
		payload: mustJSON(map[string]string{"templateId": node.Data.TemplateID}),
	}, nil
}

// commitEnd finishes the run. DirectFinish concludes the document in
// place; FlowTransfer hands it to another flow and supersedes this run.
func (o *Orchestrator) commitEnd(ctx context.Context, exec *store.Execution, node schema.Node) (*commitResult, error) {
	g := graph.WithNodeData(&exec.FlowTasks, node.ID, func(d *schema.NodeData) {
		d.Executed = true
	})

	switch node.Data.TerminalKind {
	case schema.TerminalFlowTransfer:
		if o.transfers == nil {
			return nil, schema.NewError(schema.ErrCodeTransfer, "no transfer service configured").WithNode(node.ID)
		}
		resp, err := o.transfers.Transfer(ctx, clients.TransferRequest{
			CurrentDocumentID: exec.DocumentID,
			TargetFlowID:      node.Data.TargetFlowID,
			FlowTasks:         g,
		})
		if err != nil {
			return nil, err
		}
		logging.LogWith(ctx, o.logger).Info("document transferred",
			"target_flow", node.Data.TargetFlowID, "target_flow_name", resp.TargetFlowName)
		return &commitResult{
			graph:   g,
			status:  schema.FlowStatusCompleted,
			action:  schema.ActionNodeCommitted,
			payload: mustJSON(map[string]string{"targetFlowId": node.Data.TargetFlowID, "targetFlowName": resp.TargetFlowName}),
		}, nil

	default: // DirectFinish
		if o.documents != nil {
			if err := o.documents.SetStatus(ctx, exec.DocumentID, clients.DocumentStatusConcluded); err != nil {
				return nil, err
			}
		}
		return &commitResult{
			graph:  g,
			status: schema.FlowStatusConcluded,
			action: schema.ActionNodeCommitted,
		}, nil
	}
}

// commitSwitch marks a switch node executed once its input is resolved.
func (o *Orchestrator) commitSwitch(exec *store.Execution, node schema.Node) (*commitResult, error) {
	if graph.ResolveSwitchHandle(node.Data) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "switch input is not resolved").WithNode(node.ID)
	}
	g := graph.WithNodeData(&exec.FlowTasks, node.ID, func(d *schema.NodeData) {
		d.Executed = true
	})
	return &commitResult{graph: g, action: schema.ActionNodeCommitted}, nil
}
