package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateAgainstSchema checks a decoded response document against a schema
// map produced by BuildFindingsJSONSchema.
func ValidateAgainstSchema(schemaMap map[string]any, doc any) error {
	raw, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("findings.json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("findings.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("response does not match findings schema: %w", err)
	}
	return nil
}
