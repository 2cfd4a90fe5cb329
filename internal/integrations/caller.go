package integrations

import (
	"context"
	"log/slog"

	"github.com/rvergara/docflow/internal/secrets"
	"github.com/rvergara/docflow/pkg/schema"
)

// Caller resolves an integration node to a registered action and runs it
// under the retry policy and the service's circuit breaker. Credentials
// come from the vault keyed by service name.
type Caller struct {
	registry *Registry
	breakers *BreakerRegistry
	vault    secrets.Vault
	policy   RetryPolicy
	logger   *slog.Logger
}

func NewCaller(registry *Registry, breakers *BreakerRegistry, vault secrets.Vault, policy RetryPolicy, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{
		registry: registry,
		breakers: breakers,
		vault:    vault,
		policy:   policy,
		logger:   logger,
	}
}

// Call runs the integration behind a node. It returns a Result only on a
// confirmed success; any error means the node must stay unexecuted.
func (c *Caller) Call(ctx context.Context, documentID string, node schema.Node) (*Result, error) {
	data := node.Data
	if data.Service == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "integration node has no service").WithNode(node.ID)
	}
	integrationType := data.IntegrationType
	if integrationType == "" {
		integrationType = "http"
	}

	action, err := c.registry.Get(integrationType)
	if err != nil {
		return nil, err
	}

	params, err := ExtractParams(ctx, data.JobDescriptor)
	if err != nil {
		return nil, err
	}

	credential := ""
	if c.vault != nil {
		if raw, err := c.vault.Resolve(ctx, data.Service); err == nil {
			credential = string(raw)
		}
	}

	call := Call{
		DocumentID: documentID,
		NodeID:     node.ID,
		Service:    data.Service,
		Params:     params,
		Credential: credential,
	}

	maxAttempts := c.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.breakers.Allow(data.Service); err != nil {
			return nil, err
		}
		if attempt > 0 {
			if err := waitBackoff(ctx, c.policy.BackoffFor(attempt-1)); err != nil {
				return nil, err
			}
			c.logger.Info("retrying integration call",
				"service", data.Service, "node_id", node.ID, "attempt", attempt+1)
		}

		result, err := action.Execute(ctx, call)
		if err == nil && result != nil && result.Success {
			c.breakers.RecordSuccess(data.Service)
			return result, nil
		}

		if err == nil {
			err = schema.NewErrorf(schema.ErrCodeIntegration, "service %q did not confirm success", data.Service)
		}
		lastErr = err
		state := c.breakers.RecordFailure(data.Service)
		c.logger.Warn("integration call failed",
			"service", data.Service, "node_id", node.ID, "attempt", attempt+1,
			"circuit", state.String(), "error", err)

		if !IsRetryable(err) {
			break
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeIntegration, "integration call to %q failed", data.Service).
		WithNode(node.ID).WithCause(lastErr)
}
