package forms

import (
	"encoding/json"
	"testing"

	"github.com/rvergara/docflow/pkg/schema"
)

func TestParseWellFormedDescriptor(t *testing.T) {
	raw := json.RawMessage(`{
		"Show_Condition": "FALSE",
		"Fields": {
			"Motivo": ["Custo", "Prazo", "Escopo"],
			"Detalhamento": ["default:", "type:longtext"]
		}
	}`)

	desc, err := NewParser().Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if desc.ShowCondition != schema.ShowWhenRejected {
		t.Fatalf("show condition = %q", desc.ShowCondition)
	}
	if len(desc.Fields) != 2 {
		t.Fatalf("fields = %+v", desc.Fields)
	}

	motivo := desc.Field("Motivo")
	if motivo == nil || motivo.Kind != schema.FieldSelect || len(motivo.Options) != 3 {
		t.Fatalf("Motivo = %+v", motivo)
	}
	det := desc.Field("Detalhamento")
	if det == nil || det.Kind != schema.FieldLongText || det.Default != "" {
		t.Fatalf("Detalhamento = %+v", det)
	}
}

func TestParsePreservesDeclarationOrder(t *testing.T) {
	raw := json.RawMessage(`{"Fields": {"c": ["x"], "a": ["y"], "b": ["z"]}}`)

	desc, err := NewParser().Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var names []string
	for _, f := range desc.Fields {
		names = append(names, f.Name)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

func TestParseRepairsArrayFields(t *testing.T) {
	// Known upstream malformation: the Fields object stored as an array
	// of single-entry objects.
	raw := json.RawMessage(`{
		"Show_Condition": "BOTH",
		"Fields": [
			{"Justificativa": ["default:N/A", "type:text"]},
			{"Prioridade": ["Alta", "Baixa"]}
		]
	}`)

	desc, err := NewParser().Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(desc.Fields) != 2 {
		t.Fatalf("fields = %+v", desc.Fields)
	}
	if f := desc.Field("Justificativa"); f == nil || f.Default != "N/A" || f.Kind != schema.FieldText {
		t.Fatalf("Justificativa = %+v", f)
	}
	if f := desc.Field("Prioridade"); f == nil || f.Kind != schema.FieldSelect {
		t.Fatalf("Prioridade = %+v", f)
	}
}

func TestParseEmptyAndNull(t *testing.T) {
	p := NewParser()
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null")} {
		desc, err := p.Parse(raw)
		if err != nil || desc != nil {
			t.Fatalf("Parse(%s) = %v, %v; want nil, nil", raw, desc, err)
		}
	}
}

func TestParseRejectsInvalidDescriptors(t *testing.T) {
	cases := map[string]string{
		"not json":            `{"Show_Condition": `,
		"bad condition":       `{"Show_Condition": "MAYBE", "Fields": {}}`,
		"non-string spec":     `{"Fields": {"a": [1, 2]}}`,
		"unknown top key":     `{"Show_Condition": "BOTH", "Extra": 1}`,
		"field spec not list": `{"Fields": {"a": "oops"}}`,
	}
	p := NewParser()
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := p.Parse(json.RawMessage(raw)); err == nil {
				t.Fatalf("expected error for %s", raw)
			}
		})
	}
}

func TestFieldKindFallback(t *testing.T) {
	raw := json.RawMessage(`{"Fields": {"n": ["default:0", "type:number"], "x": ["default:", "type:mystery"]}}`)

	desc, err := NewParser().Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f := desc.Field("n"); f.Kind != schema.FieldNumber {
		t.Fatalf("n kind = %q", f.Kind)
	}
	if f := desc.Field("x"); f.Kind != schema.FieldText {
		t.Fatalf("x kind = %q, want text fallback", f.Kind)
	}
}
