package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildChecklistJSONSchema describes the item array a model returns for one
// page. parent_id is a 0-based index into the same array, given as an
// integer or a numeric string, or null for top-level items. A null
// description reads as empty.
func BuildChecklistJSONSchema() map[string]any {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "minLength": 1, "pattern": `\S`},
			"description": map[string]any{"type": []string{"string", "null"}},
			"parent_id": map[string]any{
				"type":    []string{"integer", "string", "null"},
				"minimum": 0,
				"pattern": `^\s*\d+\s*$`,
			},
		},
		"required": []string{"name"},
	}
	return map[string]any{
		"type":  "array",
		"items": item,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
