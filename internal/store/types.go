package store

import (
	"encoding/json"
	"time"

	"github.com/rvergara/docflow/pkg/schema"
)

// Execution is the persisted representation of one flow run bound to one
// document. FlowTasks is the full graph snapshot (nodes, edges, viewport)
// written atomically after every commit.
type Execution struct {
	DocumentID  string            `json:"document_id"`
	FlowID      string            `json:"flow_id,omitempty"`
	FlowName    string            `json:"flow_name,omitempty"`
	FlowTasks   schema.Graph      `json:"flowTasks"`
	Status      schema.FlowStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// ExecutionUpdate specifies the mutable fields of an execution. Nil fields
// are left untouched.
type ExecutionUpdate struct {
	FlowTasks   *schema.Graph      `json:"flowTasks,omitempty"`
	Status      *schema.FlowStatus `json:"status,omitempty"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

// FlowAction is an immutable entry in the per-document audit log.
type FlowAction struct {
	ID         int64           `json:"id"`
	DocumentID string          `json:"document_id"`
	NodeID     string          `json:"flow_node,omitempty"`
	Type       string          `json:"action_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// ActionFilter specifies criteria for listing flow actions.
type ActionFilter struct {
	DocumentID string `json:"document_id,omitempty"`
	NodeID     string `json:"flow_node,omitempty"`
	Type       string `json:"action_type,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// FlowTemplate is a reusable flow graph instantiated into an execution
// when a document starts documentation.
type FlowTemplate struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Version   int          `json:"version"`
	Graph     schema.Graph `json:"graph"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
