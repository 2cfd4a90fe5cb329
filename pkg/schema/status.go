package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeKind enumerates the kinds of nodes in a flow graph.
type NodeKind string

const (
	NodeKindStart       NodeKind = "start"
	NodeKindEnd         NodeKind = "end"
	NodeKindAction      NodeKind = "action"
	NodeKindDocument    NodeKind = "document"
	NodeKindIntegration NodeKind = "integration"
	NodeKindSwitch      NodeKind = "switch"
)

// ExecutionState is the derived per-node run state. It is never stored;
// only the executed flag persists and the rest is recomputed from
// connectivity (see graph.Pending).
type ExecutionState uint8

const (
	StateNotExecuted ExecutionState = iota
	StatePendingConnected
	StateExecuted
)

func (s ExecutionState) String() string {
	switch s {
	case StatePendingConnected:
		return "pending_connected"
	case StateExecuted:
		return "executed"
	default:
		return "not_executed"
	}
}

// ApprovalStatus is the tri-state outcome of an approval action node.
// The legacy store serializes it as "TRUE" / "FALSE" / "UNDEF"; those
// strings exist only at the JSON boundary.
type ApprovalStatus uint8

const (
	ApprovalUndefined ApprovalStatus = iota
	ApprovalApproved
	ApprovalRejected
)

const (
	legacyApproved  = "TRUE"
	legacyRejected  = "FALSE"
	legacyUndefined = "UNDEF"
)

func (a ApprovalStatus) String() string {
	switch a {
	case ApprovalApproved:
		return "approved"
	case ApprovalRejected:
		return "rejected"
	default:
		return "undefined"
	}
}

// LegacyValue returns the wire form fed into switch nodes ("TRUE"/"FALSE"/"UNDEF").
func (a ApprovalStatus) LegacyValue() string {
	switch a {
	case ApprovalApproved:
		return legacyApproved
	case ApprovalRejected:
		return legacyRejected
	default:
		return legacyUndefined
	}
}

func (a ApprovalStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.LegacyValue())
}

func (a *ApprovalStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Tolerate legacy null for "no approval recorded yet".
		if string(data) == "null" {
			*a = ApprovalUndefined
			return nil
		}
		return err
	}
	parsed, err := ParseApproval(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseApproval accepts both the modern and the legacy wire spellings.
func ParseApproval(s string) (ApprovalStatus, error) {
	switch strings.ToUpper(s) {
	case legacyApproved, "APPROVED":
		return ApprovalApproved, nil
	case legacyRejected, "REJECTED":
		return ApprovalRejected, nil
	case legacyUndefined, "", "UNDEFINED":
		return ApprovalUndefined, nil
	default:
		return ApprovalUndefined, fmt.Errorf("unknown approval status %q", s)
	}
}

// CallType determines when an integration node fires.
type CallType string

const (
	CallManual    CallType = "Manual"
	CallAutomatic CallType = "Automatic"
)

// TerminalKind determines what an end node does when executed.
type TerminalKind string

const (
	TerminalDirectFinish TerminalKind = "DirectFinish"
	TerminalFlowTransfer TerminalKind = "FlowTransfer"
)

// FlowStatus is the lifecycle state of a persisted execution run.
type FlowStatus string

const (
	FlowStatusInitiated FlowStatus = "initiated"
	FlowStatusConcluded FlowStatus = "concluded"
	FlowStatusCompleted FlowStatus = "completed"
)

// Terminal reports whether the run can no longer be mutated.
func (s FlowStatus) Terminal() bool {
	return s == FlowStatusConcluded || s == FlowStatusCompleted
}

// Document statuses accepted by the Document Status API. The values are
// the legacy Portuguese labels stored by the upstream CRUD layer.
const (
	DocumentStatusIncluded   = "Incluido"
	DocumentStatusIntegrated = "Integrado"
	DocumentStatusInProcess  = "Em Processo"
	DocumentStatusConcluded  = "Concluido"
)

// ActionTypeApproval is the actionType tag that switches an action node
// into approval mode (approve/reject selection plus attached form).
const ActionTypeApproval = "Intern_Aprove"

// Flow action types recorded in the history log.
const (
	ActionRunCreated           = "run_created"
	ActionNodeCommitted        = "node_committed"
	ActionApprovalResolved     = "approval_resolved"
	ActionFormSaved            = "form_saved"
	ActionEditionStarted       = "edition_started"
	ActionIntegrationSucceeded = "integration_succeeded"
	ActionIntegrationFailed    = "integration_failed"
	ActionFlowConcluded        = "flow_concluded"
	ActionFlowTransferred      = "flow_transferred"
)
