package schema

import "encoding/json"

// Graph is one flow-execution run bound to one document: the template's
// node/edge topology plus per-node execution metadata and the viewport of
// the diagram viewer. The JSON shape (nodes, edges, viewport) is the
// de facto persisted schema; unknown fields on nodes and edges are carried
// through round-trips untouched because templates add payload fields the
// engine does not know about.
type Graph struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Viewport Viewport `json:"viewport"`
}

// Viewport is the diagram pan/zoom, persisted only for UX continuity.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Position is a node's diagram coordinate. Irrelevant to the engine,
// preserved for the viewer.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed vertex of the flow graph.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`

	extra map[string]json.RawMessage
}

// NodeData carries the kind-specific payload and execution metadata.
// Executed is the only stored piece of run state; everything else about
// progress is derived (see ExecutionState).
type NodeData struct {
	Label    string `json:"label,omitempty"`
	Executed bool   `json:"executed,omitempty"`

	// Action nodes.
	ActionType    string            `json:"actionType,omitempty"`
	Approval      ApprovalStatus    `json:"approvalStatus,omitempty"`
	AttachedForm  json.RawMessage   `json:"attachedForm,omitempty"`
	SavedFormData map[string]string `json:"savedFormData,omitempty"`

	// Document nodes.
	TemplateID string `json:"templateId,omitempty"`
	InProcess  bool   `json:"isInProcess,omitempty"`

	// Integration nodes.
	CallType        CallType        `json:"callType,omitempty"`
	Service         string          `json:"service,omitempty"`
	IntegrationType string          `json:"integrationType,omitempty"`
	JobDescriptor   json.RawMessage `json:"jobDescriptor,omitempty"`
	Condition       string          `json:"condition,omitempty"`
	ResultMessage   string          `json:"resultMessage,omitempty"`

	// Switch nodes.
	SwitchField  string `json:"switchField,omitempty"`
	LeftValue    string `json:"leftValue,omitempty"`
	RightValue   string `json:"rightValue,omitempty"`
	CurrentInput string `json:"currentInput,omitempty"`

	// End nodes.
	TerminalKind TerminalKind `json:"terminalKind,omitempty"`
	TargetFlowID string       `json:"targetFlowId,omitempty"`

	extra map[string]json.RawMessage
}

// Edge is a directed connection between two nodes. SourceHandle is only
// meaningful on edges leaving a switch node, where it names the branch.
// Condition is an optional guard expression evaluated before the edge may
// propagate pending state.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Condition    string `json:"condition,omitempty"`

	extra map[string]json.RawMessage
}

// Switch branch handle names. Two handles per switch node by convention.
const (
	HandleLeft  = "left"
	HandleRight = "right"
)

// --- JSON round-tripping with unknown-field preservation ---

type nodeAlias struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

var nodeKnownKeys = []string{"id", "type", "position", "data"}

func (n *Node) UnmarshalJSON(data []byte) error {
	var alias nodeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	extra, err := extraFields(data, nodeKnownKeys)
	if err != nil {
		return err
	}
	*n = Node{ID: alias.ID, Kind: alias.Kind, Position: alias.Position, Data: alias.Data, extra: extra}
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	return mergeExtra(nodeAlias{ID: n.ID, Kind: n.Kind, Position: n.Position, Data: n.Data}, n.extra)
}

type nodeDataAlias struct {
	Label    string `json:"label,omitempty"`
	Executed bool   `json:"executed,omitempty"`

	ActionType    string            `json:"actionType,omitempty"`
	Approval      ApprovalStatus    `json:"approvalStatus,omitempty"`
	AttachedForm  json.RawMessage   `json:"attachedForm,omitempty"`
	SavedFormData map[string]string `json:"savedFormData,omitempty"`

	TemplateID string `json:"templateId,omitempty"`
	InProcess  bool   `json:"isInProcess,omitempty"`

	CallType        CallType        `json:"callType,omitempty"`
	Service         string          `json:"service,omitempty"`
	IntegrationType string          `json:"integrationType,omitempty"`
	JobDescriptor   json.RawMessage `json:"jobDescriptor,omitempty"`
	Condition       string          `json:"condition,omitempty"`
	ResultMessage   string          `json:"resultMessage,omitempty"`

	SwitchField  string `json:"switchField,omitempty"`
	LeftValue    string `json:"leftValue,omitempty"`
	RightValue   string `json:"rightValue,omitempty"`
	CurrentInput string `json:"currentInput,omitempty"`

	TerminalKind TerminalKind `json:"terminalKind,omitempty"`
	TargetFlowID string       `json:"targetFlowId,omitempty"`
}

var nodeDataKnownKeys = []string{
	"label", "executed",
	"actionType", "approvalStatus", "attachedForm", "savedFormData",
	"templateId", "isInProcess",
	"callType", "service", "integrationType", "jobDescriptor", "condition", "resultMessage",
	"switchField", "leftValue", "rightValue", "currentInput",
	"terminalKind", "targetFlowId",
}

func (d *NodeData) UnmarshalJSON(data []byte) error {
	var alias nodeDataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	extra, err := extraFields(data, nodeDataKnownKeys)
	if err != nil {
		return err
	}
	*d = fromDataAlias(alias)
	d.extra = extra
	return nil
}

func (d NodeData) MarshalJSON() ([]byte, error) {
	return mergeExtra(toDataAlias(d), d.extra)
}

func fromDataAlias(a nodeDataAlias) NodeData {
	return NodeData{
		Label: a.Label, Executed: a.Executed,
		ActionType: a.ActionType, Approval: a.Approval, AttachedForm: a.AttachedForm, SavedFormData: a.SavedFormData,
		TemplateID: a.TemplateID, InProcess: a.InProcess,
		CallType: a.CallType, Service: a.Service, IntegrationType: a.IntegrationType,
		JobDescriptor: a.JobDescriptor, Condition: a.Condition, ResultMessage: a.ResultMessage,
		SwitchField: a.SwitchField, LeftValue: a.LeftValue, RightValue: a.RightValue, CurrentInput: a.CurrentInput,
		TerminalKind: a.TerminalKind, TargetFlowID: a.TargetFlowID,
	}
}

func toDataAlias(d NodeData) nodeDataAlias {
	return nodeDataAlias{
		Label: d.Label, Executed: d.Executed,
		ActionType: d.ActionType, Approval: d.Approval, AttachedForm: d.AttachedForm, SavedFormData: d.SavedFormData,
		TemplateID: d.TemplateID, InProcess: d.InProcess,
		CallType: d.CallType, Service: d.Service, IntegrationType: d.IntegrationType,
		JobDescriptor: d.JobDescriptor, Condition: d.Condition, ResultMessage: d.ResultMessage,
		SwitchField: d.SwitchField, LeftValue: d.LeftValue, RightValue: d.RightValue, CurrentInput: d.CurrentInput,
		TerminalKind: d.TerminalKind, TargetFlowID: d.TargetFlowID,
	}
}

type edgeAlias struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Condition    string `json:"condition,omitempty"`
}

var edgeKnownKeys = []string{"id", "source", "target", "sourceHandle", "condition"}

func (e *Edge) UnmarshalJSON(data []byte) error {
	var alias edgeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	extra, err := extraFields(data, edgeKnownKeys)
	if err != nil {
		return err
	}
	*e = Edge{ID: alias.ID, Source: alias.Source, Target: alias.Target,
		SourceHandle: alias.SourceHandle, Condition: alias.Condition, extra: extra}
	return nil
}

func (e Edge) MarshalJSON() ([]byte, error) {
	return mergeExtra(edgeAlias{ID: e.ID, Source: e.Source, Target: e.Target,
		SourceHandle: e.SourceHandle, Condition: e.Condition}, e.extra)
}

// extraFields returns every top-level JSON key of data not in known.
// A nil map is returned when there is nothing extra, so zero-value
// structs stay comparable to round-tripped ones.
func extraFields(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// mergeExtra marshals v and overlays the preserved extra keys onto the result.
func mergeExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return json.Marshal(v)
	}
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, taken := merged[k]; !taken {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}
