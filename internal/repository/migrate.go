package repository

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table layouts mirror db/ent/schema.
var (
	CheckListsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	CheckListsTable = &schema.Table{
		Name:       "check_lists",
		Columns:    CheckListsColumns,
		PrimaryKey: []*schema.Column{CheckListsColumns[0]},
	}

	CheckItemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "check_list_id", Type: field.TypeUUID},
		{Name: "parent_id", Type: field.TypeString, Nullable: true},
		{Name: "name", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "position", Type: field.TypeInt},
	}
	CheckItemsTable = &schema.Table{
		Name:       "check_items",
		Columns:    CheckItemsColumns,
		PrimaryKey: []*schema.Column{CheckItemsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "check_items_check_lists_items",
				Columns:    []*schema.Column{CheckItemsColumns[1]},
				RefColumns: []*schema.Column{CheckListsColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "check_items_check_items_children",
				Columns:    []*schema.Column{CheckItemsColumns[2]},
				RefColumns: []*schema.Column{CheckItemsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "checkitem_check_list_id_position", Columns: []*schema.Column{CheckItemsColumns[1], CheckItemsColumns[5]}},
		},
	}

	ReviewJobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "check_list_id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString, Default: ""},
		{Name: "status", Type: field.TypeString, Default: "pending"},
		{Name: "documents", Type: field.TypeJSON, Nullable: true},
		{Name: "input_tokens", Type: field.TypeInt64, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt64, Default: 0},
		{Name: "total_cost", Type: field.TypeFloat64, Default: 0},
		{Name: "error_detail", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "next_action_status", Type: field.TypeString, Nullable: true},
		{Name: "next_action", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "user_id", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
	}
	ReviewJobsTable = &schema.Table{
		Name:       "review_jobs",
		Columns:    ReviewJobsColumns,
		PrimaryKey: []*schema.Column{ReviewJobsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "review_jobs_check_lists_jobs",
				Columns:    []*schema.Column{ReviewJobsColumns[1]},
				RefColumns: []*schema.Column{CheckListsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "reviewjob_status_created_at", Columns: []*schema.Column{ReviewJobsColumns[3], ReviewJobsColumns[12]}},
		},
	}

	ReviewResultsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "review_job_id", Type: field.TypeUUID},
		{Name: "check_item_id", Type: field.TypeString},
		{Name: "check_item_name", Type: field.TypeString, Default: ""},
		{Name: "position", Type: field.TypeInt},
		{Name: "status", Type: field.TypeString, Default: "pending"},
		{Name: "verdict", Type: field.TypeString, Nullable: true},
		{Name: "confidence", Type: field.TypeFloat64, Nullable: true},
		{Name: "explanation", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "short_explanation", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "extracted_text", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "user_override", Type: field.TypeBool, Default: false},
		{Name: "user_comment", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "input_tokens", Type: field.TypeInt64, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt64, Default: 0},
		{Name: "total_cost", Type: field.TypeFloat64, Default: 0},
		{Name: "error_detail", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	ReviewResultsTable = &schema.Table{
		Name:       "review_results",
		Columns:    ReviewResultsColumns,
		PrimaryKey: []*schema.Column{ReviewResultsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "review_results_review_jobs_results",
				Columns:    []*schema.Column{ReviewResultsColumns[1]},
				RefColumns: []*schema.Column{ReviewJobsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "reviewresult_review_job_id_check_item_id", Unique: true, Columns: []*schema.Column{ReviewResultsColumns[1], ReviewResultsColumns[2]}},
		},
	}

	Tables = []*schema.Table{
		CheckListsTable,
		CheckItemsTable,
		ReviewJobsTable,
		ReviewResultsTable,
	}
)

func init() {
	CheckItemsTable.ForeignKeys[0].RefTable = CheckListsTable
	CheckItemsTable.ForeignKeys[1].RefTable = CheckItemsTable
	ReviewJobsTable.ForeignKeys[0].RefTable = CheckListsTable
	ReviewResultsTable.ForeignKeys[0].RefTable = ReviewJobsTable
}

// Migrate creates or updates the tables on drv's dialect.
func Migrate(ctx context.Context, drv *entsql.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
