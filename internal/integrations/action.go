// Package integrations runs the external calls behind integration nodes.
// Each service/type pair maps to a registered action; calls go through a
// retry policy and a per-service circuit breaker, and only a confirmed
// success may mark the node executed.
package integrations

import (
	"context"
	"encoding/json"
)

// Action is a callable integration backend.
type Action interface {
	Name() string
	Execute(ctx context.Context, call Call) (*Result, error)
	Validate(params map[string]any) error
}

// Call is the resolved request for one integration invocation.
type Call struct {
	DocumentID string
	NodeID     string
	Service    string
	// Params are extracted from the node's jobDescriptor.
	Params map[string]any
	// Credential is the plaintext secret for the target service, already
	// resolved from the vault. Empty when the service needs none.
	Credential string
}

// Result is the outcome of a confirmed integration call.
type Result struct {
	// Success is only true when the backend acknowledged the call.
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
