package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/internal/agent"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/storage"
)

// Store is the persistence the executor needs. Job status transitions are
// conditional: a terminal job is never moved again.
type Store interface {
	GetReviewJob(ctx context.Context, id uuid.UUID) (*entity.ReviewJob, error)
	MarkJobProcessing(ctx context.Context, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, detail string) error
	CompleteJob(ctx context.Context, id uuid.UUID, c entity.JobCompletion) error

	GetCheckList(ctx context.Context, id uuid.UUID) (*entity.CheckList, error)
	ListCheckItems(ctx context.Context, checkListID uuid.UUID) ([]entity.CheckItem, error)

	// EnsurePendingResults returns one result per item, creating missing
	// rows as pending and leaving existing rows untouched.
	EnsurePendingResults(ctx context.Context, jobID uuid.UUID, items []entity.CheckItem) ([]entity.ReviewResult, error)
	ApplyResultOutcome(ctx context.Context, resultID uuid.UUID, o entity.ResultOutcome) error
	ListReviewResults(ctx context.Context, jobID uuid.UUID) ([]entity.ReviewResult, error)
}

// DocumentChecker confirms a source document is present.
type DocumentChecker interface {
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
}

// Invoker is the agent gateway as seen by the executor.
type Invoker interface {
	Invoke(ctx context.Context, req agent.Request) agent.Invocation
}
