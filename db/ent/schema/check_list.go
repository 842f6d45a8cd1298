package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"github.com/google/uuid"
)

// CheckList is the root of one extracted checklist tree.
type CheckList struct {
	ent.Schema
}

func (CheckList) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "check_lists"},
	}
}

func (CheckList) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable().
			StorageKey("id"),
		field.String("name").NotEmpty(),
		field.String("description").Default("").
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (CheckList) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("items", CheckItem.Type),
		edge.To("jobs", ReviewJob.Type),
	}
}
