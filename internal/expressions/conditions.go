package expressions

import (
	"context"
	"strings"

	"github.com/rvergara/docflow/pkg/schema"
)

// Conditions evaluates guard expressions to booleans, routing each
// expression to its dialect: a "cel:" prefix selects CEL, a "jq:" prefix
// selects jq, everything else goes to Expr.
type Conditions struct {
	expr *ExprEngine
	cel  *CELEngine
	jq   *GoJQEngine
}

// NewConditions wires the condition dialects together.
func NewConditions(exprEngine *ExprEngine, celEngine *CELEngine, jqEngine *GoJQEngine) *Conditions {
	return &Conditions{expr: exprEngine, cel: celEngine, jq: jqEngine}
}

const (
	celPrefix = "cel:"
	jqPrefix  = "jq:"
)

// Evaluate runs a guard expression and coerces the result to a boolean.
// Empty expressions are vacuously true. Non-boolean results are an error:
// a guard that silently coerces is a template bug waiting to propagate.
func (c *Conditions) Evaluate(ctx context.Context, expression string, data map[string]any) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true, nil
	}

	var (
		out any
		err error
	)
	if rest, ok := strings.CutPrefix(expression, celPrefix); ok {
		out, err = c.cel.Evaluate(ctx, strings.TrimSpace(rest), data)
	} else if rest, ok := strings.CutPrefix(expression, jqPrefix); ok {
		out, err = c.jq.Evaluate(ctx, strings.TrimSpace(rest), data)
	} else {
		out, err = c.expr.Evaluate(ctx, expression, data)
	}
	if err != nil {
		return false, err
	}

	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"guard %q did not evaluate to a boolean (got %T)", expression, out)
	}
	return b, nil
}
