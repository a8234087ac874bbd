package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PageText is the extractable text of one document page.
type PageText struct{ ent.Schema }

func (PageText) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "pdf_text_data"},
	}
}

func (PageText) Fields() []ent.Field {
	return []ent.Field{
		field.String("filename").NotEmpty(),
		field.Int("page_number").Min(1),
		field.Text("text_content").Default(""),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (PageText) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("filename"),
	}
}
