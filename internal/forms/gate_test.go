package forms

import (
	"encoding/json"
	"testing"

	"github.com/rvergara/docflow/pkg/schema"
)

func approvalNode(form string) schema.Node {
	return schema.Node{
		ID:   "n1",
		Kind: schema.NodeKindAction,
		Data: schema.NodeData{
			ActionType:   schema.ActionTypeApproval,
			AttachedForm: json.RawMessage(form),
		},
	}
}

const rejectionForm = `{
	"Show_Condition": "FALSE",
	"Fields": {"Detalhamento": ["default:", "type:longtext"]}
}`

func TestGateRejectionFormFlow(t *testing.T) {
	// A rejection-only form: selecting Rejected renders it and blocks the
	// commit until Detalhamento is filled; selecting Approved skips it.
	gate := NewGate(nil, nil)
	node := approvalNode(rejectionForm)

	rejected := gate.Evaluate(node, schema.ApprovalRejected)
	if !rejected.Visible {
		t.Fatal("form must render when rejected")
	}
	if gate.Validate(rejected, nil) {
		t.Fatal("commit must stay blocked with empty Detalhamento")
	}
	if gate.Validate(rejected, map[string]string{"Detalhamento": "   "}) {
		t.Fatal("whitespace is not a filled value")
	}
	if !gate.Validate(rejected, map[string]string{"Detalhamento": "prazo estourado"}) {
		t.Fatal("filled rejection form must pass")
	}

	approved := gate.Evaluate(node, schema.ApprovalApproved)
	if approved.Visible {
		t.Fatal("form must not render when approved")
	}
	if !gate.Validate(approved, nil) {
		t.Fatal("hidden form validates trivially")
	}
}

func TestGateUnresolvedApprovalHidesForm(t *testing.T) {
	gate := NewGate(nil, nil)
	node := approvalNode(rejectionForm)

	eval := gate.Evaluate(node, schema.ApprovalUndefined)
	if eval.Visible {
		t.Fatal("form must stay hidden until approval is resolved")
	}
	if !gate.Validate(eval, nil) {
		t.Fatal("hidden form validates trivially")
	}
}

func TestGateShowAlways(t *testing.T) {
	gate := NewGate(nil, nil)
	node := approvalNode(`{"Show_Condition": "BOTH", "Fields": {"Obs": ["default:", "type:text"]}}`)

	for _, approval := range []schema.ApprovalStatus{schema.ApprovalApproved, schema.ApprovalRejected} {
		if !gate.Evaluate(node, approval).Visible {
			t.Fatalf("BOTH form must render for %v", approval)
		}
	}
}

func TestGatePlaceholderValueDoesNotValidate(t *testing.T) {
	gate := NewGate(nil, nil)
	node := approvalNode(`{"Show_Condition": "FALSE", "Fields": {"Justificativa": ["default:Descreva o motivo", "type:longtext"]}}`)

	eval := gate.Evaluate(node, schema.ApprovalRejected)
	if gate.Validate(eval, map[string]string{"Justificativa": "Descreva o motivo"}) {
		t.Fatal("untouched placeholder must not validate")
	}
	if !gate.Validate(eval, map[string]string{"Justificativa": "fornecedor sem contrato vigente"}) {
		t.Fatal("edited value must validate")
	}
}

func TestGateSelectFieldRequiresDeclaredOption(t *testing.T) {
	gate := NewGate(nil, nil)
	node := approvalNode(`{"Show_Condition": "BOTH", "Fields": {"Motivo": ["Custo", "Prazo"]}}`)

	eval := gate.Evaluate(node, schema.ApprovalApproved)
	if gate.Validate(eval, map[string]string{"Motivo": "Outro"}) {
		t.Fatal("undeclared option must not validate")
	}
	if !gate.Validate(eval, map[string]string{"Motivo": "Prazo"}) {
		t.Fatal("declared option must validate")
	}
}

func TestGateNonApprovalFormIsUnconditional(t *testing.T) {
	gate := NewGate(nil, nil)
	node := schema.Node{
		ID:   "n2",
		Kind: schema.NodeKindAction,
		Data: schema.NodeData{
			ActionType:   "Generic",
			AttachedForm: json.RawMessage(`{"Fields": {"Campo": ["default:", "type:text"]}}`),
		},
	}

	eval := gate.Evaluate(node, schema.ApprovalUndefined)
	if !eval.Visible {
		t.Fatal("condition-free form on a generic action must render")
	}
	if gate.Validate(eval, nil) {
		t.Fatal("all declared fields must be filled unconditionally")
	}
	if !gate.CanCommit(node, schema.ApprovalUndefined, map[string]string{"Campo": "ok"}) {
		t.Fatal("filled form must allow commit")
	}
}

func TestGateMalformedDescriptorFailsOpen(t *testing.T) {
	gate := NewGate(nil, nil)
	node := approvalNode(`{"Show_Condition": "INVALID"}`)

	eval := gate.Evaluate(node, schema.ApprovalRejected)
	if !eval.FailedOpen {
		t.Fatal("malformed descriptor must fail open")
	}
	if eval.Visible {
		t.Fatal("unusable form must not render")
	}
	if !gate.Validate(eval, nil) {
		t.Fatal("fail-open must not block the commit")
	}
}

func TestGateNoFormAttached(t *testing.T) {
	gate := NewGate(nil, nil)
	node := schema.Node{ID: "n3", Kind: schema.NodeKindAction}

	if !gate.CanCommit(node, schema.ApprovalApproved, nil) {
		t.Fatal("no form means the gate passes")
	}
}

func TestGateIdempotent(t *testing.T) {
	gate := NewGate(nil, nil)
	node := approvalNode(rejectionForm)
	data := map[string]string{"Detalhamento": ""}

	first := gate.CanCommit(node, schema.ApprovalRejected, data)
	for i := 0; i < 5; i++ {
		if got := gate.CanCommit(node, schema.ApprovalRejected, data); got != first {
			t.Fatalf("evaluation %d differs: %v vs %v", i, got, first)
		}
	}
}
