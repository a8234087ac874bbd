package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// AnalysisResult is one persisted finding: one unit analyzed with one model.
// Rows are append-only; re-analysis inserts a new row.
type AnalysisResult struct{ ent.Schema }

func (AnalysisResult) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "image_analysis_results"},
	}
}

func (AnalysisResult) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable().
			StorageKey("id"),
		field.String("filename").NotEmpty(),
		field.String("image_name").NotEmpty(),
		field.String("model_name").NotEmpty(),
		field.Int("page_number").Min(1),
		field.Bool("is_property_image").Default(false),
		field.Bool("for_sale_sign").Default(false),
		field.Float("for_sale_sign_confidence").Default(0),
		field.Bool("solar_panels").Default(false),
		field.Float("solar_panels_confidence").Default(0),
		field.Bool("human_presence").Default(false),
		field.Float("human_presence_confidence").Default(0),
		field.Bool("potential_damage").Default(false),
		field.Float("potential_damage_confidence").Default(0),
		field.String("damage_description").Default(""),
		field.String("full_analysis_text").MaxLen(500).Default(""),
		field.JSON("metadata", json.RawMessage{}).
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.Time("analysis_timestamp").Default(time.Now).Immutable(),
	}
}

func (AnalysisResult) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("filename"),
		index.Fields("filename", "image_name", "model_name"),
	}
}
