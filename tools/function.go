package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// FunctionTool wraps a typed Go function as a Tool. The input schema is
// derived from Args by reflection; a raw map[string]any argument from a
// parsed LLM tool call is decoded into Args with mapstructure before Fn
// runs, giving each tool a declarative schema for validation without
// hand-writing one.
type FunctionTool[Args any] struct {
	name        string
	description string
	schema      Schema
	fn          func(ctx context.Context, args Args) (Result, error)
}

// NewFunctionTool builds a FunctionTool, generating its schema from the
// Args struct's json/jsonschema tags.
func NewFunctionTool[Args any](name, description string, fn func(ctx context.Context, args Args) (Result, error)) (*FunctionTool[Args], error) {
	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("tools: generate schema for %q: %w", name, err)
	}
	return &FunctionTool[Args]{name: name, description: description, schema: schema, fn: fn}, nil
}

func (t *FunctionTool[Args]) Name() string        { return t.name }
func (t *FunctionTool[Args]) Description() string { return t.description }
func (t *FunctionTool[Args]) InputSchema() Schema  { return t.schema }

func (t *FunctionTool[Args]) Invoke(ctx context.Context, raw map[string]any) (Result, error) {
	var args Args
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &args,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("tools: build decoder for %q: %w", t.name, err)
	}
	if err := dec.Decode(raw); err != nil {
		return Result{}, fmt.Errorf("tools: decode arguments for %q: %w", t.name, err)
	}
	return t.fn(ctx, args)
}

// generateSchema reflects a JSON schema from a Go struct's json and
// jsonschema tags, matching the shape LLM tool-call formatting expects:
// a flat {type, properties, required, additionalProperties} object.
func generateSchema[T any]() (Schema, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	raw := reflector.Reflect(new(T))

	data, err := json.Marshal(raw)
	if err != nil {
		return Schema{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Schema{}, err
	}

	schema := Schema{Type: "object"}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if add, ok := m["additionalProperties"].(bool); ok {
		schema.AdditionalProperties = add
	}
	return schema, nil
}
