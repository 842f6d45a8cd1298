package llm

import (
	"context"

	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

// ChecklistRequest asks the model to turn one page of a source document into
// checklist items.
type ChecklistRequest struct {
	DocumentName string
	PageNumber   int
	PageText     string

	// Set on the single corrective retry: the parse error of the previous
	// attempt and the text that produced it.
	Feedback       string
	PreviousOutput string
}

// Generation is the raw model text plus token accounting. The text is not
// trusted to be valid JSON.
type Generation struct {
	Text  string
	Usage entity.Usage
}

// ChecklistGenerator is the interface checklist extraction depends on.
type ChecklistGenerator interface {
	GenerateChecklist(ctx context.Context, req ChecklistRequest) (Generation, error)
}
