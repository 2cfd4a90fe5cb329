package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rvergara/docflow/pkg/schema"
)

// descriptorSchemaJSON validates the attachedForm mini-schema before any
// decoding happens. Fields is allowed as an object (the intended shape) or
// as an array of single-entry objects: a known upstream data-quality bug
// stores the object as an array literal, and the parser repairs that one
// malformation instead of pattern-patching raw text.
const descriptorSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://docflow.dev/schemas/attached-form.json",
  "type": "object",
  "properties": {
    "Show_Condition": {
      "type": "string",
      "enum": ["TRUE", "FALSE", "BOTH"]
    },
    "Fields": {
      "oneOf": [
        { "$ref": "#/$defs/fieldmap" },
        {
          "type": "array",
          "items": { "$ref": "#/$defs/fieldmap" }
        }
      ]
    }
  },
  "additionalProperties": false,
  "$defs": {
    "fieldmap": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": { "type": "string" },
        "minItems": 1
      }
    }
  }
}`

const (
	defaultPrefix = "default:"
	typePrefix    = "type:"
)

// Parser decodes raw attachedForm descriptors into normalized
// FormDescriptor values. Safe for concurrent use.
type Parser struct {
	once    sync.Once
	sch     *jsonschema.Schema
	initErr error
}

// NewParser creates a descriptor parser. Schema compilation is deferred to
// first use so construction never fails.
func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) compiled() (*jsonschema.Schema, error) {
	p.once.Do(func() {
		c := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(descriptorSchemaJSON))
		if err != nil {
			p.initErr = fmt.Errorf("unmarshal form schema: %w", err)
			return
		}
		if err := c.AddResource("https://docflow.dev/schemas/attached-form.json", doc); err != nil {
			p.initErr = fmt.Errorf("add form schema resource: %w", err)
			return
		}
		p.sch, p.initErr = c.Compile("https://docflow.dev/schemas/attached-form.json")
	})
	return p.sch, p.initErr
}

// Parse validates and decodes a raw descriptor. A nil descriptor is
// returned with a nil error when raw is empty (no form attached). Any
// validation or decode failure comes back as a FORM_ERROR; the caller
// decides the fail-open policy.
func (p *Parser) Parse(raw json.RawMessage) (*schema.FormDescriptor, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	compiled, err := p.compiled()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeForm, "form schema unavailable").WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeForm, "attached form is not valid JSON").WithCause(err)
	}
	if err := compiled.Validate(doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeForm, "attached form does not match descriptor schema").WithCause(err)
	}

	var outer struct {
		ShowCondition string          `json:"Show_Condition"`
		Fields        json.RawMessage `json:"Fields"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, schema.NewError(schema.ErrCodeForm, "decode attached form").WithCause(err)
	}

	fields, err := decodeFields(outer.Fields)
	if err != nil {
		return nil, err
	}

	return &schema.FormDescriptor{
		ShowCondition: schema.ShowCondition(outer.ShowCondition),
		Fields:        fields,
	}, nil
}

// decodeFields handles both the intended object shape and the repaired
// array-of-objects shape, preserving declaration order in both cases.
func decodeFields(raw json.RawMessage) ([]schema.FormField, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return nil, schema.NewError(schema.ErrCodeForm, "decode Fields array").WithCause(err)
		}
		var fields []schema.FormField
		for _, part := range parts {
			fs, err := decodeFieldObject(part)
			if err != nil {
				return nil, err
			}
			fields = append(fields, fs...)
		}
		return fields, nil
	}

	return decodeFieldObject(trimmed)
}

// decodeFieldObject walks one JSON object with a token decoder so field
// declaration order survives into the slice.
func decodeFieldObject(raw json.RawMessage) ([]schema.FormField, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeForm, "decode Fields object").WithCause(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, schema.NewError(schema.ErrCodeForm, "Fields entry is not an object")
	}

	var fields []schema.FormField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeForm, "decode Fields key").WithCause(err)
		}
		name := keyTok.(string)

		var spec []string
		if err := dec.Decode(&spec); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeForm, "decode spec of field %q", name).WithCause(err)
		}

		fields = append(fields, buildField(name, spec))
	}
	return fields, nil
}

// buildField interprets one field spec array: a ["default:<v>", "type:<k>"]
// pair describes a free input; anything else is a list of select options.
func buildField(name string, spec []string) schema.FormField {
	if len(spec) == 2 && strings.HasPrefix(spec[0], defaultPrefix) && strings.HasPrefix(spec[1], typePrefix) {
		return schema.FormField{
			Name:    name,
			Kind:    fieldKind(strings.TrimPrefix(spec[1], typePrefix)),
			Default: strings.TrimPrefix(spec[0], defaultPrefix),
		}
	}
	return schema.FormField{
		Name:    name,
		Kind:    schema.FieldSelect,
		Options: spec,
	}
}

func fieldKind(tag string) schema.FieldKind {
	switch strings.ToLower(tag) {
	case "number":
		return schema.FieldNumber
	case "longtext", "textarea":
		return schema.FieldLongText
	default:
		return schema.FieldText
	}
}
