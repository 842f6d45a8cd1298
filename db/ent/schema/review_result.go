package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/db/ent/schema/utils"
)

type ReviewResult struct{ ent.Schema }

func (ReviewResult) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "review_results"},
	}
}

func (ReviewResult) Fields() []ent.Field {
	text := map[string]string{dialect.Postgres: "text"}
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("review_job_id", uuid.UUID{}),
		field.String("check_item_id").NotEmpty(),
		field.String("check_item_name").Default(""),
		field.Int("position").NonNegative(),
		field.String("status").
			Default(string(constants.ResultStatusPending)).
			Validate(utils.EnumValidator(constants.ResultStatuses...)),
		field.String("verdict").Optional().Nillable().
			Validate(utils.EnumValidator(constants.VerdictValues()...)),
		field.Float("confidence").Optional().Nillable().Min(0).Max(1),
		field.String("explanation").Default("").SchemaType(text),
		field.String("short_explanation").Default("").SchemaType(text),
		field.String("extracted_text").Default("").SchemaType(text),
		field.Bool("user_override").Default(false),
		field.String("user_comment").Optional().Nillable().SchemaType(text),
		field.Int64("input_tokens").Default(0).NonNegative(),
		field.Int64("output_tokens").Default(0).NonNegative(),
		field.Float("total_cost").Default(0),
		field.String("error_detail").Optional().Nillable().SchemaType(text),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (ReviewResult) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("job", ReviewJob.Type).
			Ref("results").
			Field("review_job_id").
			Unique().
			Required(),
	}
}

func (ReviewResult) Indexes() []ent.Index {
	return []ent.Index{
		// one result per (job, item); redelivery reuses the row
		index.Fields("review_job_id", "check_item_id").Unique(),
	}
}
