package llm

import (
	"fmt"
	"strings"

	"github.com/propdoc/analyzer/constants"
	"github.com/propdoc/analyzer/internal/category"
)

// gatingClause forces the model to reject non-subject-matter images before
// scoring any category. Its output key is part of the fixed response shape.
const gatingClause = "First, decide whether this is a genuine photograph of a property. " +
	"If the image is a logo, map, diagram, chart, or otherwise unrelated graphic, set " +
	`"` + constants.KeyPropertyImage + `" to detected=false and force every category below to detected=false with confidence 0. ` +
	"Only when it is a real property image, assess the following categories:"

const contentLimit = 4000

// BuildAnalysisPrompt renders the gating clause, the numbered category
// questions, and a literal JSON template mirroring the expected response
// shape. Output is deterministic for an unchanged category set.
func BuildAnalysisPrompt(cats []category.Category) string {
	var b strings.Builder
	b.WriteString("Analyze this property image or PDF page and provide a detailed assessment.\n\n")
	b.WriteString(gatingClause)
	b.WriteString("\n\n")

	for i, c := range cats {
		fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, c.Name, c.Description)
	}

	b.WriteString("\nFor each category, provide:\n")
	b.WriteString("- A YES/NO answer\n")
	b.WriteString("- Confidence level (0-100%)\n")
	b.WriteString("- Brief description of what you observed\n\n")
	b.WriteString("Format your response as JSON with exactly this structure:\n{\n")

	writeEntry(&b, constants.KeyPropertyImage, len(cats) > 0)
	for i, c := range cats {
		writeEntry(&b, c.ID, i < len(cats)-1)
	}
	b.WriteString("}\n")

	b.WriteString("\nIf this is a text page from a PDF, analyze the text content for mentions of these categories.")
	return b.String()
}

func writeEntry(b *strings.Builder, key string, comma bool) {
	fmt.Fprintf(b, "    %q: {\"detected\": true/false, \"confidence\": 0-100, \"description\": \"...\"}", key)
	if comma {
		b.WriteByte(',')
	}
	b.WriteByte('\n')
}

// WithContent appends the unit's text content to an analysis prompt, bounded
// so oversized pages do not blow past context limits.
func WithContent(prompt, content string) string {
	content = strings.TrimSpace(content)
	if len(content) > contentLimit {
		content = content[:contentLimit] + "\n…(truncated)"
	}
	return prompt + "\n\nContent to analyze:\n" + content
}
