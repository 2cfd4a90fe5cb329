package forms

import (
	"log/slog"
	"strings"

	"github.com/rvergara/docflow/pkg/schema"
)

// Gate decides whether a node's attached form must be rendered and whether
// the filled-in values allow an execution commit. Both decisions are pure
// functions of the node state, so re-evaluating an unchanged node always
// yields the same answer.
type Gate struct {
	parser *Parser
	logger *slog.Logger
}

// NewGate creates a form gate.
func NewGate(parser *Parser, logger *slog.Logger) *Gate {
	if parser == nil {
		parser = NewParser()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{parser: parser, logger: logger}
}

// Evaluation is the gate's verdict for one node.
type Evaluation struct {
	// Descriptor is the parsed form, nil when no form is attached or the
	// descriptor was unusable.
	Descriptor *schema.FormDescriptor
	// Visible reports whether the inspector must render the form.
	Visible bool
	// FailedOpen is set when a malformed descriptor was skipped. Blocking
	// every commit on a cosmetic data issue is worse than skipping the
	// form, so validation passes; the skip is logged for audit.
	FailedOpen bool
}

// Evaluate parses the node's attached form and applies the visibility
// rule. The approval argument is the effective approval outcome: the
// staged selection during inspection, or the persisted status otherwise.
//
// Visibility for approval-type action nodes requires a resolved approval
// and a matching Show_Condition ("TRUE" shows only when approved, "FALSE"
// only when rejected, "BOTH" in either case). Non-approval action nodes
// with a condition-free form show it unconditionally; a condition on a
// non-approval node can never match.
func (g *Gate) Evaluate(node schema.Node, approval schema.ApprovalStatus) Evaluation {
	if node.Kind != schema.NodeKindAction || len(node.Data.AttachedForm) == 0 {
		return Evaluation{}
	}

	desc, err := g.parser.Parse(node.Data.AttachedForm)
	if err != nil {
		g.logger.Warn("attached form unusable, skipping validation",
			slog.String("node_id", node.ID), slog.String("error", err.Error()))
		return Evaluation{FailedOpen: true}
	}
	if desc == nil || len(desc.Fields) == 0 {
		return Evaluation{Descriptor: desc}
	}

	eval := Evaluation{Descriptor: desc}
	if node.Data.ActionType == schema.ActionTypeApproval {
		if approval == schema.ApprovalUndefined {
			return eval
		}
		switch desc.ShowCondition {
		case schema.ShowWhenApproved:
			eval.Visible = approval == schema.ApprovalApproved
		case schema.ShowWhenRejected:
			eval.Visible = approval == schema.ApprovalRejected
		case schema.ShowAlways:
			eval.Visible = true
		}
		return eval
	}

	eval.Visible = desc.ShowCondition == ""
	return eval
}

// Validate reports whether the filled values satisfy the evaluation: when
// the form is hidden (or failed open) validation passes trivially; when
// visible, every declared field needs a non-empty value that is not the
// declared placeholder, and select fields must carry one of their options.
func (g *Gate) Validate(eval Evaluation, formData map[string]string) bool {
	if !eval.Visible || eval.Descriptor == nil {
		return true
	}
	for _, field := range eval.Descriptor.Fields {
		value := strings.TrimSpace(formData[field.Name])
		if value == "" {
			return false
		}
		if field.Kind == schema.FieldSelect {
			if !contains(field.Options, value) {
				return false
			}
			continue
		}
		// An untouched field still holds its placeholder text.
		if field.Default != "" && value == strings.TrimSpace(field.Default) {
			return false
		}
	}
	return true
}

// CanCommit is the combined gate used by the orchestrator to enable the
// save control.
func (g *Gate) CanCommit(node schema.Node, approval schema.ApprovalStatus, formData map[string]string) bool {
	return g.Validate(g.Evaluate(node, approval), formData)
}

func contains(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}
