package integrations

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"

	"github.com/rvergara/docflow/pkg/schema"
)

// jobDescriptor is the parsed shape of an integration node's jobDescriptor.
// "params" holds literal call parameters. "extract" maps parameter names to
// jq queries evaluated against the whole descriptor document, for payloads
// where the interesting values sit deep inside an imported job definition.
type jobDescriptor struct {
	Params  map[string]any    `json:"params"`
	Extract map[string]string `json:"extract"`
}

// ExtractParams resolves an integration node's call parameters from its
// jobDescriptor. Literal params come first; extracted values override them.
func ExtractParams(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	params := map[string]any{}
	if len(raw) == 0 {
		return params, nil
	}

	var desc jobDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse jobDescriptor").WithCause(err)
	}
	for k, v := range desc.Params {
		params[k] = v
	}
	if len(desc.Extract) == 0 {
		return params, nil
	}

	// gojq queries run against the descriptor itself decoded as any.
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse jobDescriptor").WithCause(err)
	}

	for name, query := range desc.Extract {
		q, err := gojq.Parse(query)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "jobDescriptor extract %q: invalid query", name).WithCause(err)
		}
		code, err := gojq.Compile(q, gojq.WithEnvironLoader(func() []string { return nil }))
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "jobDescriptor extract %q: compile failed", name).WithCause(err)
		}

		iter := code.RunWithContext(ctx, root)
		var results []any
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "jobDescriptor extract %q: query failed", name).WithCause(err)
			}
			results = append(results, v)
		}
		switch len(results) {
		case 0:
			// No match leaves the literal param (if any) in place.
		case 1:
			params[name] = results[0]
		default:
			params[name] = results
		}
	}
	return params, nil
}
