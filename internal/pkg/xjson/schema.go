// Package xjson holds JSON helpers shared by the resource catalogues.
package xjson

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/samber/lo"
)

// Transform decodes rawSchema, applies transform to it and to every nested
// schema, and returns the result.
func Transform(rawSchema json.RawMessage, transform func(*jsonschema.Schema)) (*jsonschema.Schema, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	walk(&schema, transform)

	return &schema, nil
}

func walk(schema *jsonschema.Schema, transform func(*jsonschema.Schema)) {
	if schema == nil {
		return
	}

	transform(schema)

	lo.ForEach([]*jsonschema.Schema{
		schema.Items,
		schema.AdditionalProperties,
		schema.Contains,
		schema.Not,
		schema.If,
		schema.Then,
		schema.Else,
	}, func(sub *jsonschema.Schema, _ int) {
		walk(sub, transform)
	})

	for _, list := range [][]*jsonschema.Schema{schema.PrefixItems, schema.AllOf, schema.AnyOf, schema.OneOf} {
		for _, sub := range list {
			walk(sub, transform)
		}
	}

	for _, m := range []map[string]*jsonschema.Schema{schema.Defs, schema.Properties, schema.PatternProperties} {
		for _, sub := range lo.Values(m) {
			walk(sub, transform)
		}
	}
}

// closeObject rejects properties an object schema does not declare.
func closeObject(s *jsonschema.Schema) {
	if len(s.Properties) > 0 && s.AdditionalProperties == nil {
		s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	}
}

// Compile resolves rawSchema with every object closed to undeclared
// properties.
func Compile(rawSchema json.RawMessage) (*jsonschema.Resolved, error) {
	schema, err := Transform(rawSchema, closeObject)
	if err != nil {
		return nil, err
	}

	return schema.Resolve(nil)
}

// CompilePartial is Compile for patches: the top level required list is
// dropped so a patch may carry any subset of the fields. Nested objects are
// replaced whole by a patch and keep their required lists.
func CompilePartial(rawSchema json.RawMessage) (*jsonschema.Resolved, error) {
	schema, err := Transform(rawSchema, closeObject)
	if err != nil {
		return nil, err
	}

	schema.Required = nil

	return schema.Resolve(nil)
}

// Normalize converts v into the plain JSON value space (maps, slices, strings,
// float64, bool, nil) schema validation works on.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}
