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
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

type ReviewJob struct{ ent.Schema }

func (ReviewJob) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "review_jobs"},
	}
}

func (ReviewJob) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.UUID("check_list_id", uuid.UUID{}),
		field.String("name").Default(""),
		field.String("status").
			Default(string(constants.JobStatusPending)).
			Validate(utils.EnumValidator(constants.JobStatuses...)),
		field.JSON("documents", []entity.Document{}).Optional(),
		field.Int64("input_tokens").Default(0).NonNegative(),
		field.Int64("output_tokens").Default(0).NonNegative(),
		field.Float("total_cost").Default(0),
		field.String("error_detail").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.String("next_action_status").Optional().Nillable().
			Validate(utils.EnumValidator(constants.NextActionStatuses...)),
		field.String("next_action").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.String("user_id").Optional().Nillable(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
		field.Time("completed_at").Optional().Nillable(),
	}
}

func (ReviewJob) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("check_list", CheckList.Type).
			Ref("jobs").
			Field("check_list_id").
			Unique().
			Required(),
		edge.To("results", ReviewResult.Type),
	}
}

func (ReviewJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "created_at"),
	}
}
