package validate

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// compileSchema compiles a JSON Schema document (already decoded into a
// map) with gojsonschema, returning a reusable gojsonschema.Schema.
func compileSchema(schema map[string]any) (*gojsonschema.Schema, error) {
	loader := gojsonschema.NewGoLoader(schema)
	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("schema does not compile: %w", err)
	}
	return compiled, nil
}

// validateAgainst validates doc against a compiled schema, returning a flat
// list of "<field>: <description>" messages on failure.
func validateAgainst(compiled *gojsonschema.Schema, doc map[string]any) ([]string, error) {
	result, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed to run: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return msgs, nil
}

// parseParams decodes raw (if present) into a JSON object, returning an
// error if it decodes to anything other than an object.
func parseParams(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("params must be a JSON object")
	}
	return obj, nil
}
