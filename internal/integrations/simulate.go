package integrations

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rvergara/docflow/pkg/schema"
)

// SimulateIntegration is the "simulate" integration type: it confirms (or
// fails) a call without touching any external system. Used in development
// and in flows whose backend is not wired up yet.
type SimulateIntegration struct {
	// Latency, when positive, delays each call to mimic a slow backend.
	Latency time.Duration
}

func (a *SimulateIntegration) Name() string { return "simulate" }

func (a *SimulateIntegration) Validate(params map[string]any) error {
	if outcome := stringParam(params, "outcome", ""); outcome != "" && outcome != "success" && outcome != "failure" {
		return schema.NewErrorf(schema.ErrCodeValidation, "simulate integration: unknown outcome %q", outcome)
	}
	return nil
}

func (a *SimulateIntegration) Execute(ctx context.Context, call Call) (*Result, error) {
	if err := a.Validate(call.Params); err != nil {
		return nil, err
	}
	if a.Latency > 0 {
		select {
		case <-time.After(a.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if stringParam(call.Params, "outcome", "success") == "failure" {
		return nil, schema.NewErrorf(schema.ErrCodeIntegration, "simulated failure for service %q", call.Service)
	}

	payload, _ := json.Marshal(map[string]string{
		"service":  call.Service,
		"document": call.DocumentID,
		"node":     call.NodeID,
	})
	return &Result{Success: true, Message: "simulated", Data: payload}, nil
}
