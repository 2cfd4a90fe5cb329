package expressions

import "context"

// Engine evaluates expressions attached to flow templates.
// Three implementations: Expr (edge guards, automation gating), CEL
// (alternative condition dialect) and GoJQ (field extraction from
// document payloads and integration job descriptors).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
