package constants

// Canonical category ids. These four predate custom categories and map to fixed
// columns on the findings table for backward-compatible querying; custom
// categories live only in the metadata JSON.
const (
	CategoryForSaleSign     = "for_sale_sign"
	CategorySolarPanels     = "solar_panels"
	CategoryHumanPresence   = "human_presence"
	CategoryPotentialDamage = "potential_damage"
)

// KeyPropertyImage is the gating predicate key: the model must first decide
// whether the unit is a genuine property image before scoring any category.
// It is part of the fixed response shape and is not user-editable.
const KeyPropertyImage = "is_property_image"

// CanonicalCategories returns the canonical ids in column order.
func CanonicalCategories() []string {
	return []string{
		CategoryForSaleSign,
		CategorySolarPanels,
		CategoryHumanPresence,
		CategoryPotentialDamage,
	}
}

// AvailableModels maps display names to completion model ids.
var AvailableModels = map[string]string{
	"Claude (Anthropic)":      "claude-3-5-sonnet",
	"GPT-4 (OpenAI)":          "gpt-4o",
	"Pixtral Large (Mistral)": "pixtral-large",
}

// ResolveModel accepts either a display name or a raw model id.
func ResolveModel(name string) (string, bool) {
	if id, ok := AvailableModels[name]; ok {
		return id, true
	}
	for _, id := range AvailableModels {
		if id == name {
			return id, true
		}
	}
	return "", false
}
