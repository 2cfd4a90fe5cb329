package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Executions (one per document)
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, documentID string) (*Execution, error)
	UpdateExecution(ctx context.Context, documentID string, update ExecutionUpdate) error
	ListOpenExecutions(ctx context.Context) ([]*Execution, error)
	DeleteExecution(ctx context.Context, documentID string) error

	// Flow action history (append-only audit log)
	AppendAction(ctx context.Context, action *FlowAction) error
	ListActions(ctx context.Context, filter ActionFilter) ([]*FlowAction, error)

	// Dynamic-form data (side channel, independent of the graph write)
	SaveFormData(ctx context.Context, documentID, nodeID string, data map[string]string) error
	GetFormData(ctx context.Context, documentID, nodeID string) (map[string]string, error)

	// Flow templates
	StoreTemplate(ctx context.Context, tpl *FlowTemplate) error
	GetTemplate(ctx context.Context, id string) (*FlowTemplate, error)
	ListTemplates(ctx context.Context) ([]*FlowTemplate, error)

	// Secrets (integration credentials, encrypted by the vault)
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
