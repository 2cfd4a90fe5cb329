package validation

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rvergara/docflow/pkg/schema"
)

// graphSchemaJSON validates the persisted run snapshot shape. Nodes and
// edges allow additional properties on purpose: kind-specific payloads
// vary and templates add fields that must round-trip untouched.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://docflow.dev/schemas/graph.json",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["start", "end", "action", "document", "integration", "switch"]},
          "position": {
            "type": "object",
            "properties": {
              "x": {"type": "number"},
              "y": {"type": "number"}
            }
          },
          "data": {"type": "object"}
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "id": {"type": "string"},
          "source": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1},
          "sourceHandle": {"type": ["string", "null"]}
        }
      }
    },
    "viewport": {
      "type": "object",
      "properties": {
        "x": {"type": "number"},
        "y": {"type": "number"},
        "zoom": {"type": "number"}
      }
    }
  }
}`

// SnapshotValidator validates serialized graphs against the snapshot
// schema. The compiled schema is built once and reused.
type SnapshotValidator struct {
	once    sync.Once
	sch     *jsonschema.Schema
	initErr error
}

func NewSnapshotValidator() *SnapshotValidator {
	return &SnapshotValidator{}
}

func (v *SnapshotValidator) compiled() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
		if err != nil {
			v.initErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("graph.json", doc); err != nil {
			v.initErr = err
			return
		}
		v.sch, v.initErr = compiler.Compile("graph.json")
	})
	return v.sch, v.initErr
}

// Validate serializes the graph and checks the snapshot against the
// schema.
func (v *SnapshotValidator) Validate(g *schema.Graph) error {
	sch, err := v.compiled()
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "compile graph schema").WithCause(err)
	}

	raw, err := json.Marshal(g)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "serialize graph").WithCause(err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "reparse graph").WithCause(err)
	}
	if err := sch.Validate(doc); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "graph snapshot rejected").WithCause(err)
	}
	return nil
}
