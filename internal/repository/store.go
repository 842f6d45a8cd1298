package repository

import (
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/review-orchestrator/internal/checklist"
	"github.com/joseph-ayodele/review-orchestrator/internal/workflow"
)

// Store bundles the repositories behind the workflow, extraction and queue
// interfaces.
type Store struct {
	ReviewJobRepository
	CheckListRepository
	ReviewResultRepository
}

var (
	_ workflow.Store       = (*Store)(nil)
	_ checklist.ItemWriter = (*Store)(nil)
)

func NewStore(drv *entsql.Driver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		ReviewJobRepository:    NewReviewJobRepository(drv, logger),
		CheckListRepository:    NewCheckListRepository(drv, logger),
		ReviewResultRepository: NewReviewResultRepository(drv, logger),
	}
}
