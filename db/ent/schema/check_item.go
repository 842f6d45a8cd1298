package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"
)

// CheckItem is one node of a checklist tree. Ids are assigned at extraction
// time, not by the database.
type CheckItem struct {
	ent.Schema
}

func (CheckItem) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "check_items"},
	}
}

func (CheckItem) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable().
			StorageKey("id"),
		field.UUID("check_list_id", uuid.UUID{}),
		field.String("parent_id").Optional().Nillable(),
		field.String("name").NotEmpty(),
		// empty for organizational parents
		field.String("description").Default("").
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Int("position").NonNegative(),
	}
}

func (CheckItem) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("check_list", CheckList.Type).
			Ref("items").
			Field("check_list_id").
			Unique().
			Required(),
		edge.To("children", CheckItem.Type).
			From("parent").
			Field("parent_id").
			Unique(),
	}
}

func (CheckItem) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("check_list_id", "position"),
	}
}
