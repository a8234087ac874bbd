package llm

import (
	"github.com/propdoc/analyzer/constants"
	"github.com/propdoc/analyzer/internal/category"
)

// BuildFindingsJSONSchema builds a JSON Schema describing the well-formed
// response shape for the active category set. Validation against it is
// advisory: a failing response still flows through ParseFindings.
func BuildFindingsJSONSchema(cats []category.Category) map[string]any {
	props := map[string]any{
		constants.KeyPropertyImage: findingSchema(),
	}
	required := []string{constants.KeyPropertyImage}
	for _, c := range cats {
		props[c.ID] = findingSchema()
		required = append(required, c.ID)
	}
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func findingSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"detected":    map[string]any{"type": "boolean"},
			"confidence":  map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"description": map[string]any{"type": "string"},
		},
		"required":             []string{"detected", "confidence"},
		"additionalProperties": false,
	}
}
