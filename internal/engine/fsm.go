package engine

import (
	"context"
	"sync"

	"github.com/rvergara/docflow/internal/store"
	"github.com/rvergara/docflow/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to string) error

// ActionAppender is satisfied by the Store; FSMs record an audit action on
// every transition that has one.
type ActionAppender interface {
	AppendAction(ctx context.Context, action *store.FlowAction) error
}

// ValidNodeTransitions is the per-node state machine. Executed is terminal.
var ValidNodeTransitions = map[schema.ExecutionState][]schema.ExecutionState{
	schema.StateNotExecuted:      {schema.StatePendingConnected, schema.StateExecuted},
	schema.StatePendingConnected: {schema.StateExecuted},
	schema.StateExecuted:         {},
}

// ValidFlowTransitions is the run lifecycle. Both concluded and completed
// are terminal.
var ValidFlowTransitions = map[schema.FlowStatus][]schema.FlowStatus{
	schema.FlowStatusInitiated: {schema.FlowStatusConcluded, schema.FlowStatusCompleted},
	schema.FlowStatusConcluded: {},
	schema.FlowStatusCompleted: {},
}

// IsValidNodeTransition reports whether a node may move between two states.
// NotExecuted to Executed is allowed only for start nodes, which have no
// predecessor to make them pending; callers enforce that restriction.
func IsValidNodeTransition(from, to schema.ExecutionState) bool {
	for _, a := range ValidNodeTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

type flowHookKey struct {
	from, to schema.FlowStatus
}

// FlowFSM manages run lifecycle transitions and records them in the
// flow action history.
type FlowFSM struct {
	mu       sync.Mutex
	appender ActionAppender
	before   map[flowHookKey][]TransitionHook
	after    map[flowHookKey][]TransitionHook
}

func NewFlowFSM(appender ActionAppender) *FlowFSM {
	return &FlowFSM{
		appender: appender,
		before:   make(map[flowHookKey][]TransitionHook),
		after:    make(map[flowHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a run transition.
func (f *FlowFSM) OnBefore(from, to schema.FlowStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := flowHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a run transition.
func (f *FlowFSM) OnAfter(from, to schema.FlowStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := flowHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a run status transition, appending the
// matching history action. The caller persists the new status.
func (f *FlowFSM) Transition(ctx context.Context, documentID string, from, to schema.FlowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidFlowTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"document_id": documentID, "from": string(from), "to": string(to)})
	}

	key := flowHookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if actionType := flowActionType(to); actionType != "" && f.appender != nil {
		action := &store.FlowAction{
			DocumentID: documentID,
			Type:       actionType,
		}
		if err := f.appender.AppendAction(ctx, action); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "record run transition").WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}
	return nil
}

func isValidFlowTransition(from, to schema.FlowStatus) bool {
	for _, a := range ValidFlowTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func flowActionType(to schema.FlowStatus) string {
	switch to {
	case schema.FlowStatusConcluded:
		return schema.ActionFlowConcluded
	case schema.FlowStatusCompleted:
		return schema.ActionFlowTransferred
	default:
		return ""
	}
}
