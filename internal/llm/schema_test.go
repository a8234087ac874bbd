package llm

import (
	"encoding/json"
	"testing"

	"github.com/propdoc/analyzer/internal/category"
)

func TestValidateAgainstSchemaAccepts(t *testing.T) {
	cats := category.NewSchema().List()
	schema := BuildFindingsJSONSchema(cats)

	doc := map[string]any{
		"is_property_image": map[string]any{"detected": true, "confidence": 90.0},
	}
	for _, c := range cats {
		doc[c.ID] = map[string]any{"detected": false, "confidence": 0.0, "description": ""}
	}

	// Round-trip through JSON so numbers take the generic float64 form.
	raw, _ := json.Marshal(doc)
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatal(err)
	}
	if err := ValidateAgainstSchema(schema, v); err != nil {
		t.Fatalf("well-formed document rejected: %v", err)
	}
}

func TestValidateAgainstSchemaRejects(t *testing.T) {
	cats := category.NewSchema().List()
	schema := BuildFindingsJSONSchema(cats)

	cases := map[string]string{
		"missing required key": `{"is_property_image": {"detected": true, "confidence": 1}}`,
		"confidence over 100": `{
			"is_property_image": {"detected": true, "confidence": 120},
			"for_sale_sign": {"detected": false, "confidence": 0},
			"solar_panels": {"detected": false, "confidence": 0},
			"human_presence": {"detected": false, "confidence": 0},
			"potential_damage": {"detected": false, "confidence": 0}
		}`,
	}
	for name, doc := range cases {
		var v any
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			t.Fatal(err)
		}
		if err := ValidateAgainstSchema(schema, v); err == nil {
			t.Errorf("%s: expected validation failure", name)
		}
	}
}
