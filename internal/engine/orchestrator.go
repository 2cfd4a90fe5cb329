// Package engine drives flow execution: it validates node commits, applies
// the per-kind commit handlers, recomputes derived run state and persists
// the resulting snapshot.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rvergara/docflow/internal/clients"
	"github.com/rvergara/docflow/internal/expressions"
	"github.com/rvergara/docflow/internal/forms"
	"github.com/rvergara/docflow/internal/graph"
	"github.com/rvergara/docflow/internal/integrations"
	"github.com/rvergara/docflow/internal/logging"
	"github.com/rvergara/docflow/internal/store"
	"github.com/rvergara/docflow/internal/streaming"
	"github.com/rvergara/docflow/internal/validation"
	"github.com/rvergara/docflow/pkg/schema"
)

// Orchestrator is the single entry point for everything a run can do:
// opening, selecting, staging approvals, committing nodes. REST and MCP are
// thin call sites over it.
type Orchestrator struct {
	store      store.Store
	gate       *forms.Gate
	caller     *integrations.Caller
	documents  *clients.DocumentsClient
	editions   *clients.EditionsClient
	transfers  *clients.TransferClient
	conditions *expressions.Conditions
	validator  *validation.Validator
	flowFSM    *FlowFSM
	hub        streaming.EventHub
	logger     *slog.Logger

	// commitMu serializes commits. A commit arriving while another is in
	// flight is rejected rather than queued, mirroring the disabled
	// commit affordance in the UI.
	commitMu sync.Mutex

	// sessionMu guards the per-document UI session state.
	sessionMu sync.Mutex
	sessions  map[string]*session
}

// session is the transient per-document editing state: which node is
// selected and any approval choice staged but not yet committed.
type session struct {
	selectedNode string
	pinned       bool
	staged       map[string]schema.ApprovalStatus
}

// Config carries the orchestrator's collaborators.
type Config struct {
	Store      store.Store
	Gate       *forms.Gate
	Caller     *integrations.Caller
	Documents  *clients.DocumentsClient
	Editions   *clients.EditionsClient
	Transfers  *clients.TransferClient
	Conditions *expressions.Conditions
	Hub        streaming.EventHub
	Logger     *slog.Logger
}

func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := cfg.Gate
	if gate == nil {
		gate = forms.NewGate(nil, logger)
	}
	return &Orchestrator{
		store:      cfg.Store,
		gate:       gate,
		caller:     cfg.Caller,
		documents:  cfg.Documents,
		editions:   cfg.Editions,
		transfers:  cfg.Transfers,
		conditions: cfg.Conditions,
		validator:  validation.NewValidator(),
		flowFSM:    NewFlowFSM(cfg.Store),
		hub:        cfg.Hub,
		logger:     logger,
	}
}

// RunView is the derived picture of a run handed to callers after any
// operation: the raw graph plus everything computed from it.
type RunView struct {
	DocumentID string                     `json:"documentId"`
	FlowID     string                     `json:"flowId,omitempty"`
	FlowName   string                     `json:"flowName,omitempty"`
	Status     schema.FlowStatus          `json:"status"`
	Readonly   bool                       `json:"readonly"`
	Graph      schema.Graph               `json:"flowTasks"`
	Pending    []string                   `json:"pending"`
	Edges      map[string]graph.EdgeState `json:"edges"`
}

// Start creates a new run for a document from a stored flow template.
func (o *Orchestrator) Start(ctx context.Context, documentID, templateID string) (*RunView, error) {
	tpl, err := o.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := o.validator.Validate(&tpl.Graph).Err(); err != nil {
		return nil, err
	}
	exec := &store.Execution{
		DocumentID: documentID,
		FlowID:     tpl.ID,
		FlowName:   tpl.Name,
		FlowTasks:  graph.Clone(&tpl.Graph),
		Status:     schema.FlowStatusInitiated,
	}
	if err := o.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	_ = o.store.AppendAction(ctx, &store.FlowAction{
		DocumentID: documentID,
		Type:       schema.ActionRunCreated,
		Payload:    mustJSON(map[string]string{"flowId": tpl.ID, "flowName": tpl.Name}),
	})
	o.publish(ctx, streaming.RunEvent{
		DocumentID: documentID,
		EventType:  schema.ActionRunCreated,
		Payload:    map[string]any{"flowId": tpl.ID, "flowName": tpl.Name},
	})
	logging.LogWith(ctx, o.logger).Info("run created", "document_id", documentID, "flow_id", tpl.ID)
	return o.view(exec), nil
}

// Open loads a run for display.
func (o *Orchestrator) Open(ctx context.Context, documentID string) (*RunView, error) {
	exec, err := o.store.GetExecution(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return o.view(exec), nil
}

// SelectNode marks a node as selected in the document's session.
func (o *Orchestrator) SelectNode(documentID, nodeID string) {
	o.withSession(documentID, func(s *session) {
		s.selectedNode = nodeID
	})
}

// Deselect clears the selection unless the inspector is pinned.
func (o *Orchestrator) Deselect(documentID string) {
	o.withSession(documentID, func(s *session) {
		if !s.pinned {
			s.selectedNode = ""
		}
	})
}

// Pin keeps the inspector open across pane clicks.
func (o *Orchestrator) Pin(documentID string, pinned bool) {
	o.withSession(documentID, func(s *session) {
		s.pinned = pinned
	})
}

// SelectedNode returns the node currently selected for the document.
func (o *Orchestrator) SelectedNode(documentID string) string {
	var id string
	o.withSession(documentID, func(s *session) {
		id = s.selectedNode
	})
	return id
}

// StageApproval stores a tentative approval choice. Nothing is persisted
// until the node is committed; the staged value is what the form gate and
// the commit handler read.
func (o *Orchestrator) StageApproval(documentID, nodeID string, status schema.ApprovalStatus) {
	o.withSession(documentID, func(s *session) {
		s.staged[nodeID] = status
	})
}

// StagedApproval returns the tentative approval for a node, falling back
// to the persisted value on the node itself.
func (o *Orchestrator) StagedApproval(g *schema.Graph, documentID, nodeID string) schema.ApprovalStatus {
	var staged schema.ApprovalStatus
	var ok bool
	o.withSession(documentID, func(s *session) {
		staged, ok = s.staged[nodeID]
	})
	if ok {
		return staged
	}
	if n := graph.NodeByID(g, nodeID); n != nil {
		return n.Data.Approval
	}
	return schema.ApprovalUndefined
}

// CanCommit reports whether the node is committable right now: reachable,
// not yet executed, approval resolved when required, form gate satisfied.
func (o *Orchestrator) CanCommit(ctx context.Context, documentID, nodeID string) (bool, error) {
	exec, err := o.store.GetExecution(ctx, documentID)
	if err != nil {
		return false, err
	}
	if exec.Status.Terminal() {
		return false, nil
	}
	node := graph.NodeByID(&exec.FlowTasks, nodeID)
	if node == nil {
		return false, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", nodeID)
	}
	if err := o.checkCommittable(ctx, exec, node); err != nil {
		return false, nil
	}
	return true, nil
}

// Commit executes a node. It serializes against other commits, validates
// the transition, runs the kind-specific handler and persists the updated
// snapshot in one write. Only a confirmed persist flips in-memory state.
func (o *Orchestrator) Commit(ctx context.Context, documentID, nodeID string) (*RunView, error) {
	if !o.commitMu.TryLock() {
		return nil, schema.NewError(schema.ErrCodeConflict, "another commit is in flight")
	}
	defer o.commitMu.Unlock()

	ctx = logging.WithIDs(ctx, documentID, nodeID, "")
	log := logging.LogWith(ctx, o.logger)

	exec, err := o.store.GetExecution(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return nil, schema.NewError(schema.ErrCodeConflict, "run is already terminal")
	}
	node := graph.NodeByID(&exec.FlowTasks, nodeID)
	if node == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", nodeID)
	}
	if err := o.checkCommittable(ctx, exec, node); err != nil {
		return nil, err
	}

	result, err := o.dispatch(ctx, exec, *node)
	if err != nil {
		log.Warn("commit failed", "kind", node.Kind, "error", err)
		return nil, err
	}

	update := store.ExecutionUpdate{FlowTasks: &result.graph}
	if result.status != "" {
		if err := o.flowFSM.Transition(ctx, documentID, exec.Status, result.status); err != nil {
			return nil, err
		}
		update.Status = &result.status
		now := time.Now().UTC()
		update.CompletedAt = &now
	}
	if err := o.store.UpdateExecution(ctx, documentID, update); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "persist run snapshot").WithCause(err)
	}

	exec.FlowTasks = result.graph
	if result.status != "" {
		exec.Status = result.status
	}

	if result.action != "" {
		_ = o.store.AppendAction(ctx, &store.FlowAction{
			DocumentID: documentID,
			NodeID:     nodeID,
			Type:       result.action,
			Payload:    result.payload,
		})
	}
	o.clearStaged(documentID, nodeID)
	o.publish(ctx, streaming.RunEvent{
		DocumentID: documentID,
		NodeID:     nodeID,
		EventType:  result.action,
		Payload:    map[string]any{"status": exec.Status},
	})

	log.Info("node committed", "kind", node.Kind, "status", exec.Status)
	return o.view(exec), nil
}

// SaveFormData persists dynamic form values for a node, independent of the
// main graph write, and mirrors them onto the node snapshot.
func (o *Orchestrator) SaveFormData(ctx context.Context, documentID, nodeID string, data map[string]string) error {
	exec, err := o.store.GetExecution(ctx, documentID)
	if err != nil {
		return err
	}
	if graph.NodeByID(&exec.FlowTasks, nodeID) == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", nodeID)
	}
	if err := o.store.SaveFormData(ctx, documentID, nodeID, data); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save form data").WithCause(err)
	}
	g := graph.WithNodeData(&exec.FlowTasks, nodeID, func(d *schema.NodeData) {
		d.SavedFormData = data
	})
	if err := o.store.UpdateExecution(ctx, documentID, store.ExecutionUpdate{FlowTasks: &g}); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "persist run snapshot").WithCause(err)
	}
	_ = o.store.AppendAction(ctx, &store.FlowAction{
		DocumentID: documentID,
		NodeID:     nodeID,
		Type:       schema.ActionFormSaved,
	})
	o.publish(ctx, streaming.RunEvent{DocumentID: documentID, NodeID: nodeID, EventType: schema.ActionFormSaved})
	return nil
}

// Transfer closes the document's current run and starts a fresh one on the
// target flow. This is the server side of the flow transfer contract; it
// returns the target flow's name.
//
// Transfer holds the commit guard: a transfer racing a commit would let the
// commit's snapshot write clobber the freshly created run. In particular a
// FlowTransfer end node committed against a transfer service that loops back
// to this same instance is rejected here with CONFLICT instead.
func (o *Orchestrator) Transfer(ctx context.Context, documentID, targetFlowID string) (string, *RunView, error) {
	if !o.commitMu.TryLock() {
		return "", nil, schema.NewError(schema.ErrCodeConflict, "another commit is in flight")
	}
	defer o.commitMu.Unlock()

	exec, err := o.store.GetExecution(ctx, documentID)
	if err != nil {
		return "", nil, err
	}
	tpl, err := o.store.GetTemplate(ctx, targetFlowID)
	if err != nil {
		return "", nil, schema.NewErrorf(schema.ErrCodeTransfer, "target flow %q not found", targetFlowID).WithCause(err)
	}

	if !exec.Status.Terminal() {
		status := schema.FlowStatusCompleted
		if err := o.flowFSM.Transition(ctx, documentID, exec.Status, status); err != nil {
			return "", nil, err
		}
		now := time.Now().UTC()
		if err := o.store.UpdateExecution(ctx, documentID, store.ExecutionUpdate{Status: &status, CompletedAt: &now}); err != nil {
			return "", nil, schema.NewErrorf(schema.ErrCodeStore, "close current run").WithCause(err)
		}
	}

	if err := o.store.DeleteExecution(ctx, documentID); err != nil {
		return "", nil, schema.NewErrorf(schema.ErrCodeStore, "supersede current run").WithCause(err)
	}
	view, err := o.Start(ctx, documentID, tpl.ID)
	if err != nil {
		return "", nil, err
	}
	return tpl.Name, view, nil
}

// History lists the audit trail, optionally filtered by node.
func (o *Orchestrator) History(ctx context.Context, documentID, nodeID string) ([]*store.FlowAction, error) {
	return o.store.ListActions(ctx, store.ActionFilter{DocumentID: documentID, NodeID: nodeID})
}

// CompleteEdition marks a document node executed once the edition service
// reports the edition finished. This is the deferred half of the document
// node commit.
func (o *Orchestrator) CompleteEdition(ctx context.Context, documentID, nodeID string) (*RunView, error) {
	if !o.commitMu.TryLock() {
		return nil, schema.NewError(schema.ErrCodeConflict, "another commit is in flight")
	}
	defer o.commitMu.Unlock()

	exec, err := o.store.GetExecution(ctx, documentID)
	if err != nil {
		return nil, err
	}
	node := graph.NodeByID(&exec.FlowTasks, nodeID)
	if node == nil || node.Kind != schema.NodeKindDocument {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "document node %q not found", nodeID)
	}
	if !node.Data.InProcess {
		return nil, schema.NewError(schema.ErrCodeInvalidTransition, "edition was never started")
	}
	g := graph.WithNodeData(&exec.FlowTasks, nodeID, func(d *schema.NodeData) {
		d.Executed = true
		d.InProcess = false
	})
	if err := o.store.UpdateExecution(ctx, documentID, store.ExecutionUpdate{FlowTasks: &g}); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "persist run snapshot").WithCause(err)
	}
	exec.FlowTasks = g
	_ = o.store.AppendAction(ctx, &store.FlowAction{
		DocumentID: documentID,
		NodeID:     nodeID,
		Type:       schema.ActionNodeCommitted,
	})
	o.publish(ctx, streaming.RunEvent{DocumentID: documentID, NodeID: nodeID, EventType: schema.ActionNodeCommitted})
	return o.view(exec), nil
}

// checkCommittable enforces the transition rules common to all kinds.
func (o *Orchestrator) checkCommittable(ctx context.Context, exec *store.Execution, node *schema.Node) error {
	if node.Data.Executed {
		return schema.NewError(schema.ErrCodeInvalidTransition, "node is already executed").WithNode(node.ID)
	}

	r := graph.Compute(&exec.FlowTasks, o.edgeGuard(ctx))
	state := graph.StateOf(&exec.FlowTasks, r, node.ID)

	// Start nodes have no predecessor to make them pending; they commit
	// straight from NotExecuted.
	if node.Kind == schema.NodeKindStart {
		return nil
	}
	if state != schema.StatePendingConnected {
		return schema.NewError(schema.ErrCodeInvalidTransition, "node is not reachable yet").WithNode(node.ID)
	}

	if node.Kind == schema.NodeKindAction {
		approval := o.StagedApproval(&exec.FlowTasks, exec.DocumentID, node.ID)
		if node.Data.ActionType == schema.ActionTypeApproval && approval == schema.ApprovalUndefined {
			return schema.NewError(schema.ErrCodeValidation, "approval decision is required").WithNode(node.ID)
		}
		formData := node.Data.SavedFormData
		if stored, err := o.store.GetFormData(ctx, exec.DocumentID, node.ID); err == nil && len(stored) > 0 {
			formData = stored
		}
		if !o.gate.CanCommit(*node, approval, formData) {
			return schema.NewError(schema.ErrCodeForm, "attached form is incomplete").WithNode(node.ID)
		}
	}

	if node.Kind == schema.NodeKindEnd && node.Data.TerminalKind == schema.TerminalFlowTransfer && node.Data.TargetFlowID == "" {
		return schema.NewError(schema.ErrCodeValidation, "flow transfer node has no target flow").WithNode(node.ID)
	}
	return nil
}

// edgeGuard evaluates optional edge conditions. A missing expression or an
// evaluation error never blocks progress; failures are logged.
func (o *Orchestrator) edgeGuard(ctx context.Context) graph.EdgeGuard {
	if o.conditions == nil {
		return nil
	}
	return func(e schema.Edge) bool {
		if e.Condition == "" {
			return true
		}
		ok, err := o.conditions.Evaluate(ctx, e.Condition, map[string]any{})
		if err != nil {
			o.logger.Warn("edge condition failed, treating as pass", "edge", e.ID, "error", err)
			return true
		}
		return ok
	}
}

func (o *Orchestrator) view(exec *store.Execution) *RunView {
	r := graph.Compute(&exec.FlowTasks, nil)
	pending := make([]string, 0, len(r.Pending))
	for id := range r.Pending {
		pending = append(pending, id)
	}
	// Unexecuted start nodes are committable without a predecessor.
	for _, n := range exec.FlowTasks.Nodes {
		if n.Kind == schema.NodeKindStart && !n.Data.Executed {
			pending = append(pending, n.ID)
		}
	}
	sort.Strings(pending)
	return &RunView{
		DocumentID: exec.DocumentID,
		FlowID:     exec.FlowID,
		FlowName:   exec.FlowName,
		Status:     exec.Status,
		Readonly:   exec.Status.Terminal(),
		Graph:      exec.FlowTasks,
		Pending:    pending,
		Edges:      graph.ClassifyAll(&exec.FlowTasks, r),
	}
}

// withSession runs fn with the document's session. Every access to session
// state goes through here so that sessionMu covers reads and writes alike.
func (o *Orchestrator) withSession(documentID string, fn func(*session)) {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	if o.sessions == nil {
		o.sessions = make(map[string]*session)
	}
	s, ok := o.sessions[documentID]
	if !ok {
		s = &session{staged: make(map[string]schema.ApprovalStatus)}
		o.sessions[documentID] = s
	}
	fn(s)
}

func (o *Orchestrator) clearStaged(documentID, nodeID string) {
	o.withSession(documentID, func(s *session) {
		delete(s.staged, nodeID)
	})
}

// publish emits a run event when a hub is wired. Best effort: a full
// subscriber never blocks or fails an operation.
func (o *Orchestrator) publish(ctx context.Context, event streaming.RunEvent) {
	if o.hub == nil {
		return
	}
	if err := o.hub.Publish(ctx, event); err != nil {
		logging.LogWith(ctx, o.logger).Warn("event publish failed", "error", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
