// Command generate regenerates the typed ent client from ./db/ent/schema.
// The repository package builds its queries with entgo.io/ent/dialect/sql
// and keeps its migrate tables in step with these schemas.
package main

import (
	"log"

	"entgo.io/ent/entc"
	"entgo.io/ent/entc/gen"
)

func main() {
	err := entc.Generate(
		"./db/ent/schema",
		&gen.Config{
			Target:   "gen/ent",
			Package:  "github.com/joseph-ayodele/review-orchestrator/gen/ent",
			Features: []gen.Feature{gen.FeatureUpsert},
		},
	)
	if err != nil {
		log.Fatal(err)
	}
}
