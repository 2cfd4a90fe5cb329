// Package validation checks flow graphs before they are stored or
// instantiated into a run: structural rules first, then a JSON Schema pass
// over the serialized snapshot.
package validation

import "github.com/rvergara/docflow/pkg/schema"

// Issue is one problem found in a graph.
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result collects validation issues. A graph with no errors is usable;
// warnings are advisory.
type Result struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

func (r *Result) AddError(field, code, message string) {
	r.Errors = append(r.Errors, Issue{Field: field, Code: code, Message: message})
}

func (r *Result) AddWarning(field, code, message string) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Code: code, Message: message})
}

func (r *Result) Valid() bool { return len(r.Errors) == 0 }

// Err converts the result into a FlowError, or nil when valid.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	details := make(map[string]any, len(r.Errors))
	for _, issue := range r.Errors {
		details[issue.Field] = issue.Message
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "graph validation failed: %s", r.Errors[0].Message).
		WithDetails(details)
}

// Issue codes.
const (
	CodeDuplicateID     = "duplicate_id"
	CodeUnknownEndpoint = "unknown_endpoint"
	CodeMissingStart    = "missing_start"
	CodeMultipleStart   = "multiple_start"
	CodeBadHandle       = "bad_handle"
	CodeMissingTarget   = "missing_target"
	CodeDeadEdge        = "dead_edge"
	CodeSchemaViolation = "schema_violation"
)

// Validator runs every check over a graph.
type Validator struct {
	snapshot *SnapshotValidator
}

func NewValidator() *Validator {
	return &Validator{snapshot: NewSnapshotValidator()}
}

// Validate runs structural checks and, when those pass, the snapshot
// schema check.
func (v *Validator) Validate(g *schema.Graph) *Result {
	result := CheckGraph(g)
	if !result.Valid() {
		return result
	}
	if err := v.snapshot.Validate(g); err != nil {
		result.AddError("graph", CodeSchemaViolation, err.Error())
	}
	return result
}
