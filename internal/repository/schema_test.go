package repository

import (
	"testing"

	"entgo.io/ent"
	entschema "entgo.io/ent/dialect/sql/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/review-orchestrator/db/ent/schema"
)

// The migrate tables are maintained by hand; keep them in step with the ent
// schema definitions.
func TestTablesMatchEntSchema(t *testing.T) {
	tests := []struct {
		table  *entschema.Table
		fields []ent.Field
	}{
		{CheckListsTable, schema.CheckList{}.Fields()},
		{CheckItemsTable, schema.CheckItem{}.Fields()},
		{ReviewJobsTable, schema.ReviewJob{}.Fields()},
		{ReviewResultsTable, schema.ReviewResult{}.Fields()},
	}
	for _, tt := range tests {
		t.Run(tt.table.Name, func(t *testing.T) {
			var fieldNames, columnNames []string
			for _, f := range tt.fields {
				d := f.Descriptor()
				name := d.Name
				if d.StorageKey != "" {
					name = d.StorageKey
				}
				fieldNames = append(fieldNames, name)
			}
			for _, c := range tt.table.Columns {
				columnNames = append(columnNames, c.Name)
			}
			assert.ElementsMatch(t, fieldNames, columnNames)
		})
	}
}

func TestSchemaStatusValidators(t *testing.T) {
	for _, f := range (schema.ReviewJob{}).Fields() {
		d := f.Descriptor()
		if d.Name != "status" {
			continue
		}
		require.Len(t, d.Validators, 1)
		validate, ok := d.Validators[0].(func(string) error)
		require.True(t, ok)
		assert.NoError(t, validate("processing"))
		assert.Error(t, validate("running"))
		return
	}
	t.Fatal("review_jobs has no status field")
}
