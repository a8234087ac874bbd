package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/propdoc/analyzer/internal/category"
	"github.com/propdoc/analyzer/internal/entity"
)

// rawPreviewLimit bounds how much of an unparseable response is preserved in
// the first category's description for diagnostics.
const rawPreviewLimit = 200

// ExtractJSON returns the substring between the first '{' and the last '}' of
// raw. Models routinely wrap JSON in prose; this bounds the search without a
// full recovery grammar.
func ExtractJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// ParseFindings extracts a best-effort per-category mapping from a raw model
// response. It never fails: a malformed response yields a default-filled
// mapping over every active category id, with a truncated prefix of the raw
// text preserved in the first category's description.
func ParseFindings(raw string, cats []category.Category) map[string]entity.CategoryFinding {
	doc, ok := ExtractJSON(raw)
	if !ok {
		return defaultFindings(cats, raw)
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return defaultFindings(cats, raw)
	}

	out := make(map[string]entity.CategoryFinding, len(m))
	for key, v := range m {
		out[key] = coerceFinding(v)
	}
	return out
}

// defaultFindings synthesizes detected=false, confidence=0 for every active
// category id.
func defaultFindings(cats []category.Category, raw string) map[string]entity.CategoryFinding {
	out := make(map[string]entity.CategoryFinding, len(cats))
	for i, c := range cats {
		f := entity.CategoryFinding{}
		if i == 0 {
			f.Description = truncate(raw, rawPreviewLimit)
		}
		out[c.ID] = f
	}
	return out
}

// coerceFinding tolerates the shapes models actually emit: proper objects,
// bare booleans, "YES"/"NO" strings, and numeric or string confidences.
func coerceFinding(v any) entity.CategoryFinding {
	switch t := v.(type) {
	case map[string]any:
		return entity.CategoryFinding{
			Detected:    coerceBool(t["detected"]),
			Confidence:  clampConfidence(coerceFloat(t["confidence"])),
			Description: coerceString(t["description"]),
		}
	case bool:
		return entity.CategoryFinding{Detected: t}
	case string:
		return entity.CategoryFinding{Detected: coerceBool(t)}
	default:
		return entity.CategoryFinding{}
	}
}

func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}

func coerceFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	}
	return 0
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func clampConfidence(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
